// Package metrics records distribution activity. Components take a Recorder
// and default to Nop when none is configured.
package metrics

// Tick outcomes reported by the timer loop.
const (
	TickDelivered = "delivered"
	TickEmpty     = "empty"
	TickWaiting   = "waiting"
)

type Recorder interface {
	ItemsPushed(n int)
	ItemAssigned()
	QueueDepth(n int)
	SnapshotSaved(seconds float64)
	SnapshotFailed()
	DeliveryFailed()
	TimerTick(outcome string)
	LiveTimers(n int)
}

type Nop struct{}

var _ Recorder = Nop{}

func (Nop) ItemsPushed(int)       {}
func (Nop) ItemAssigned()         {}
func (Nop) QueueDepth(int)        {}
func (Nop) SnapshotSaved(float64) {}
func (Nop) SnapshotFailed()       {}
func (Nop) DeliveryFailed()       {}
func (Nop) TimerTick(string)      {}
func (Nop) LiveTimers(int)        {}
