package driver

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chazu/shapegraph/ic"
	"github.com/chazu/shapegraph/shape"
)

func newDriver(out *bytes.Buffer) *Driver {
	a := shape.NewArena(shape.DefaultPolicy(), nil)
	if out == nil {
		return New(a, ic.DefaultPolicy(), nil)
	}
	return New(a, ic.DefaultPolicy(), out)
}

const sharingScript = `
# two points built the same way share a shape
new p1
new p2
put p1 x 1
put p1 y 2
put p2 x 10
put p2 y 20
assert same-shape p1 p2

# deleting from one moves only that one to a dictionary
delete p1 x
assert dictionary p1
assert other-shape p1 p2
assert value p2 x 10
`

func TestRunSharingScript(t *testing.T) {
	var out bytes.Buffer
	d := newDriver(&out)
	defer d.Close()
	if err := d.Run(strings.NewReader(sharingScript)); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestGetDrivesInlineCache(t *testing.T) {
	var out bytes.Buffer
	d := newDriver(&out)
	defer d.Close()
	script := `
new proto
put proto greet "hello"
new a proto
new b proto
put b own 1
get site a greet
get site a greet
assert state site proto-hit
get site b greet
assert state site proto-list
`
	if err := d.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), `a.greet = "hello" [proto-hit]`) {
		t.Errorf("unexpected output:\n%s", out.String())
	}
	if site := d.Site("site"); site == nil || site.Hits != 1 {
		t.Errorf("expected one cache hit, got %+v", site)
	}
}

func TestAssertionFailureReportsLine(t *testing.T) {
	d := newDriver(nil)
	defer d.Close()
	script := "new a\nnew b\nput a x 1\nassert same-shape a b\n"
	err := d.Run(strings.NewReader(script))
	if !errors.Is(err, ErrAssertion) {
		t.Fatalf("expected assertion failure, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "line 4:") {
		t.Errorf("expected line 4 in error, got %v", err)
	}
}

func TestExecErrors(t *testing.T) {
	d := newDriver(nil)
	defer d.Close()
	tests := []struct {
		line string
		want error
	}{
		{"bogus", ErrUnknownCommand},
		{"put nobody x 1", ErrUnknownObject},
		{"put", ErrUsage},
		{`new s "unterminated`, ErrUsage},
		{"new a", nil},
		{"new a", ErrRejected},
		{"preventext a", nil},
		{"put a x 1", ErrRejected},
		{"flatten a", ErrRejected},
		{"proto a a", ErrRejected},
	}
	for _, tt := range tests {
		err := d.Exec(tt.line)
		if tt.want == nil {
			if err != nil {
				t.Errorf("Exec(%q) = %v, want nil", tt.line, err)
			}
			continue
		}
		if !errors.Is(err, tt.want) {
			t.Errorf("Exec(%q) = %v, want %v", tt.line, err, tt.want)
		}
	}
}

func TestInspectingCommands(t *testing.T) {
	var out bytes.Buffer
	d := newDriver(&out)
	defer d.Close()
	script := `
new o
define o hidden w-c 1
put o b 2
accessor o len
keys o
shape o
get s1 o len
ic s1
freeze o
assert value o b 2
stats
`
	if err := d.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		"o: [b len]",
		"[0] hidden w-c-",
		"[1] b wec-",
		"s1: generic",
		"shapes:",
		"caches: 1 sites",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestFlattenAndRelease(t *testing.T) {
	d := newDriver(nil)
	defer d.Close()
	script := `
new o
put o a 1
put o b 2
delete o a
flatten o
assert value o b 2
new ref
put o other @ref
assert value o other @ref
release ref
`
	if err := d.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, ok := d.Object("ref"); ok {
		t.Error("expected released object to be forgotten")
	}
	o, _ := d.Object("o")
	if o.Shape().IsDictionary() {
		t.Error("expected o to be flattened")
	}
}

func TestReleasedPrototypeStillServesLookups(t *testing.T) {
	var out bytes.Buffer
	d := newDriver(&out)
	defer d.Close()
	script := `
new p
put p x 1
new c p
release p
get s c x
assert value c x 1
assert state s proto-hit
`
	if err := d.Run(strings.NewReader(script)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "c.x = 1") {
		t.Errorf("Expected c.x = 1 in output, got %q", out.String())
	}
}

func TestContractErrorNamesCommand(t *testing.T) {
	d := newDriver(nil)
	defer d.Close()
	if err := d.Exec("new o"); err != nil {
		t.Fatalf("new: %v", err)
	}
	o, _ := d.Object("o")
	o.Release()

	err := d.Exec("get s o x")
	var ce *shape.ContractError
	if !errors.As(err, &ce) {
		t.Fatalf("Expected a contract error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "get: ") {
		t.Errorf("Expected the error to name the get command, got %q", err)
	}
}
