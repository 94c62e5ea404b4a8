package tagging

import "time"

// Result labels reported to the Recorder
const (
	ResultOK          = "ok"
	ResultIgnored     = "ignored"
	ResultUnknownTag  = "unknown_tag"
	ResultNoSession   = "no_session"
	ResultEmpty       = "empty"
	ResultDispatched  = "dispatched"
	ResultDeliveryErr = "error"
)

// Recorder receives flow measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	UploadHandled(result string)
	ToggleHandled(result string)
	ConfirmHandled(result string)
	DeliveryFinished(status string, duration time.Duration)
	FanoutFinished(deliveries, failed int, duration time.Duration)
	SessionsActive(n int)
}

type nopRecorder struct{}

func (nopRecorder) UploadHandled(string) {}
func (nopRecorder) ToggleHandled(string) {}
func (nopRecorder) ConfirmHandled(string) {}
func (nopRecorder) DeliveryFinished(string, time.Duration) {}
func (nopRecorder) FanoutFinished(int, int, time.Duration) {}
func (nopRecorder) SessionsActive(int) {}
