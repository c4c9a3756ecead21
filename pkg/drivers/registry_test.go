package drivers

import (
	"errors"
	"sort"
	"testing"

	"github.com/perilink/perilink-go/pkg/engine"
	"github.com/perilink/perilink-go/pkg/wire"
)

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New("no-such-driver"); !errors.Is(err, engine.ErrUnknownDriver) {
		t.Fatalf("New: got %v, want ErrUnknownDriver", err)
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	if !sort.StringsAreSorted(names) {
		t.Fatalf("Names not sorted: %v", names)
	}
	for _, want := range []string{
		"cmods7", "cvcc", "dgspi", "patgen64",
		"ps2", "rcc8", "runber", "sndgen", "vgaterm",
	} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Names missing %q", want)
		}
	}
}

// Every registered driver must produce a table the engine would
// accept: unique resource names, grammar funcs matching the declared
// capabilities, and windows that fit in one packet.
func TestDriverTables(t *testing.T) {
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			d, err := New(name)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			info := d.Info()
			if info.Name != name {
				t.Errorf("Info.Name: got %q, want %q", info.Name, name)
			}
			if info.Desc == "" || info.Help == "" {
				t.Errorf("driver %s has no description or help", name)
			}
			specs := d.Resources()
			if len(specs) == 0 {
				t.Fatalf("driver %s has no resources", name)
			}
			seen := make(map[string]bool)
			for _, spec := range specs {
				if spec.Name == "" || seen[spec.Name] {
					t.Errorf("bad or duplicate resource name %q", spec.Name)
				}
				seen[spec.Name] = true
				if !spec.Caps.IsValid() {
					t.Errorf("%s: invalid caps %v", spec.Name, spec.Caps)
				}
				if int(spec.Count) > wire.MaxData {
					t.Errorf("%s: count %d exceeds a packet", spec.Name, spec.Count)
				}
				if (spec.Caps.CanWrite() || spec.WriteOnGet) && spec.Parse == nil {
					t.Errorf("%s: writable without Parse", spec.Name)
				}
				if (spec.Caps.CanRead() || spec.Caps.CanBroadcast()) && spec.Format == nil {
					t.Errorf("%s: readable without Format", spec.Name)
				}
				if spec.AsyncReply && !spec.WriteOnGet {
					t.Errorf("%s: AsyncReply without WriteOnGet", spec.Name)
				}
			}
		})
	}
}

// Two instances of the same driver must not share state, since each
// loads into its own slot.
func TestInstancesIndependent(t *testing.T) {
	a, err := New("patgen64")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	b, err := New("patgen64")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	aPattern := resourceSpec(t, a, "pattern")
	bPattern := resourceSpec(t, b, "pattern")

	if _, err := aPattern.Parse("abc"); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := bPattern.Format(nil)
	for _, c := range got[:len(got)-1] {
		if c != '0' {
			t.Fatalf("second instance pattern changed: %q", got)
		}
	}
}

func resourceSpec(t *testing.T, d engine.Driver, name string) *engine.ResourceSpec {
	t.Helper()
	specs := d.Resources()
	for i := range specs {
		if specs[i].Name == name {
			return &specs[i]
		}
	}
	t.Fatalf("driver has no resource %q", name)
	return nil
}
