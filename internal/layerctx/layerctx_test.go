package layerctx

import (
	"net"
	"testing"
)

type recordingLayer struct {
	ran bool
}

func (r *recordingLayer) Run(ctx *Context) error {
	r.ran = true
	return nil
}

func TestContext_Next(t *testing.T) {
	first := &recordingLayer{}
	second := &recordingLayer{}

	ctx := &Context{
		NextLayer: func(current Layer) (Layer, error) {
			if current == Layer(first) {
				return second, nil
			}
			return nil, nil
		},
	}

	next, err := ctx.Next(first)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if next != Layer(second) {
		t.Error("Next() did not return the configured next layer")
	}
}

func TestContext_Next_NoFunction(t *testing.T) {
	ctx := &Context{}
	if _, err := ctx.Next(&recordingLayer{}); err != ErrNoNextLayer {
		t.Errorf("Next() error = %v, want ErrNoNextLayer", err)
	}
}

func TestContext_ConnectionPair(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	ctx := &Context{Client: c1, Server: c2}
	if ctx.Client != c1 || ctx.Server != c2 {
		t.Error("Context did not retain the connection pair")
	}
}

func TestSNIOverride_Unset(t *testing.T) {
	o := NoSNIOverride()
	if !o.IsUnset() {
		t.Error("NoSNIOverride() should be unset")
	}
	got, ok := o.Resolve("client.example")
	if !ok || got != "client.example" {
		t.Errorf("Resolve() = (%q, %v), want (%q, true)", got, ok, "client.example")
	}
}

func TestSNIOverride_ExplicitNone(t *testing.T) {
	o := ExplicitNoSNI()
	if !o.IsExplicitNone() {
		t.Error("ExplicitNoSNI() should report IsExplicitNone")
	}
	got, ok := o.Resolve("client.example")
	if ok || got != "" {
		t.Errorf("Resolve() = (%q, %v), want (\"\", false)", got, ok)
	}
}

func TestSNIOverride_ExplicitValue(t *testing.T) {
	o := ExplicitSNI("override.example")
	v, ok := o.Value()
	if !ok || v != "override.example" {
		t.Errorf("Value() = (%q, %v), want (%q, true)", v, ok, "override.example")
	}
	got, ok := o.Resolve("client.example")
	if !ok || got != "override.example" {
		t.Errorf("Resolve() = (%q, %v), want (%q, true)", got, ok, "override.example")
	}
}

func TestSNIOverride_UnsetNoFallback(t *testing.T) {
	o := NoSNIOverride()
	got, ok := o.Resolve("")
	if ok || got != "" {
		t.Errorf("Resolve() = (%q, %v), want (\"\", false)", got, ok)
	}
}
