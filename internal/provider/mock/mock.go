package mock

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smallbiznis/payway/internal/provider/domain"
)

// Mode controls how the adapter responds. RANDOM draws per call with weights
// 70% success, 15% failure, 10% timeout, 5% 3DS challenge.
type Mode string

const (
	ModeSuccess     Mode = "SUCCESS"
	ModeFail        Mode = "FAIL"
	ModeTimeout     Mode = "TIMEOUT"
	ModeRandom      Mode = "RANDOM"
	ModeRequires3DS Mode = "REQUIRES_3DS"
)

func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeSuccess:
		return ModeSuccess, true
	case ModeFail:
		return ModeFail, true
	case ModeTimeout:
		return ModeTimeout, true
	case ModeRandom:
		return ModeRandom, true
	case ModeRequires3DS:
		return ModeRequires3DS, true
	}
	return "", false
}

// Adapter simulates a card acquirer. The mode is switchable at runtime from
// the admin API, so it lives behind an atomic.
type Adapter struct {
	mode    atomic.Value
	latency time.Duration
}

func New(mode Mode, latency time.Duration) *Adapter {
	a := &Adapter{latency: latency}
	a.mode.Store(mode)
	return a
}

func (a *Adapter) Name() string { return "mock" }

func (a *Adapter) Mode() Mode { return a.mode.Load().(Mode) }

func (a *Adapter) SetMode(m Mode) { a.mode.Store(m) }

func (a *Adapter) Authorize(ctx context.Context, req domain.AuthorizeRequest) domain.Result {
	return a.respond(ctx, "MOCK-AUTH")
}

func (a *Adapter) Capture(ctx context.Context, req domain.CaptureRequest) domain.Result {
	return a.respond(ctx, "MOCK-CAP")
}

func (a *Adapter) Refund(ctx context.Context, req domain.RefundRequest) domain.Result {
	return a.respond(ctx, "MOCK-REF")
}

func (a *Adapter) HealthCheck(ctx context.Context) domain.HealthStatus {
	switch a.Mode() {
	case ModeTimeout:
		return domain.HealthUnhealthy
	case ModeFail:
		return domain.HealthDegraded
	default:
		return domain.HealthHealthy
	}
}

func (a *Adapter) respond(ctx context.Context, refPrefix string) domain.Result {
	if !a.sleep(ctx) {
		return domain.Timeout()
	}

	mode := a.Mode()
	if mode == ModeRandom {
		mode = drawRandom()
	}

	switch mode {
	case ModeFail:
		return domain.Failure("card_declined", "card was declined by issuer")
	case ModeTimeout:
		// Simulated hang; wait out the caller deadline.
		<-ctx.Done()
		return domain.Timeout()
	case ModeRequires3DS:
		ref := reference(refPrefix)
		return domain.Needs3DS(ref, "https://3ds.mock.local/challenge/"+ref)
	default:
		return domain.Success(reference(refPrefix))
	}
}

func (a *Adapter) sleep(ctx context.Context) bool {
	if a.latency <= 0 {
		return true
	}
	t := time.NewTimer(a.latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func drawRandom() Mode {
	n := rand.Intn(100)
	switch {
	case n < 70:
		return ModeSuccess
	case n < 85:
		return ModeFail
	case n < 95:
		return ModeTimeout
	default:
		return ModeRequires3DS
	}
}

func reference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.NewString()[:8]))
}
