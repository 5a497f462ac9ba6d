package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/payway/internal/provider/domain"
)

type fakeAdapter struct {
	name string
}

func (f *fakeAdapter) Name() string { return f.name }
func (f *fakeAdapter) Authorize(ctx context.Context, req domain.AuthorizeRequest) domain.Result {
	return domain.Success("ref")
}
func (f *fakeAdapter) Capture(ctx context.Context, req domain.CaptureRequest) domain.Result {
	return domain.Success("ref")
}
func (f *fakeAdapter) Refund(ctx context.Context, req domain.RefundRequest) domain.Result {
	return domain.Success("ref")
}
func (f *fakeAdapter) HealthCheck(ctx context.Context) domain.HealthStatus {
	return domain.HealthHealthy
}

func TestRegistryLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry(&fakeAdapter{name: "Mock"})

	got, err := r.Get("MOCK")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name() != "Mock" {
		t.Fatalf("unexpected adapter %q", got.Name())
	}
	if !r.Has("mock") {
		t.Fatal("expected Has to match normalized name")
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewRegistry(&fakeAdapter{name: "mock"})

	_, err := r.Get("stripe")
	var notFound *ErrProviderNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrProviderNotFound, got %v", err)
	}
	if notFound.Name != "stripe" {
		t.Fatalf("unexpected name %q", notFound.Name)
	}
}

func TestRegistryPreservesRegistrationOrder(t *testing.T) {
	a := &fakeAdapter{name: "alpha"}
	b := &fakeAdapter{name: "beta"}
	r := NewRegistry(a, b, &fakeAdapter{name: "alpha"})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("expected duplicate name dropped, got %d adapters", len(all))
	}
	if all[0] != a || all[1] != b {
		t.Fatal("registration order not preserved")
	}
}
