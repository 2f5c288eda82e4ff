// Package driver runs line-oriented scripts against a shape arena and its
// inline caches. It is how shapectl exercises the shape system without an
// execution engine: each line names one object-model operation, and get
// lines go through per-site inline caches the way compiled property loads
// would.
//
// Script syntax, one command per line, '#' starts a comment:
//
//	new NAME [PROTO|null] [exotic] [immutable-proto]
//	put OBJ PROP VALUE
//	define OBJ PROP ATTRS VALUE
//	accessor OBJ PROP
//	delete OBJ PROP
//	reconfigure OBJ PROP ATTRS
//	proto OBJ PROTO|null
//	get SITE OBJ PROP
//	preventext|seal|freeze|flatten OBJ
//	release OBJ
//	keys OBJ
//	shape OBJ
//	ic [SITE]
//	stats
//	assert same-shape OBJ OBJ
//	assert other-shape OBJ OBJ
//	assert dictionary OBJ
//	assert state SITE STATE
//	assert value OBJ PROP VALUE
//
// Values are integers, double-quoted strings, true, false, null, or @OBJ
// for a reference to another object.
package driver

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/tliron/commonlog"

	"github.com/chazu/shapegraph/ic"
	"github.com/chazu/shapegraph/shape"
)

var log = commonlog.GetLogger("shapegraph.driver")

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUnknownObject  = errors.New("unknown object")
	ErrUsage          = errors.New("usage")
	ErrRejected       = errors.New("operation rejected")
	ErrAssertion      = errors.New("assertion failed")
)

// Driver holds the named objects and call sites of one script session.
type Driver struct {
	arena   *shape.Arena
	caches  *ic.Table
	out     io.Writer
	objects map[string]*shape.Object
	sites   map[string]int
}

// New creates a driver over a. Output of inspecting commands goes to out.
func New(a *shape.Arena, p ic.Policy, out io.Writer) *Driver {
	if out == nil {
		out = io.Discard
	}
	return &Driver{
		arena:   a,
		caches:  ic.NewTable(p),
		out:     out,
		objects: make(map[string]*shape.Object),
		sites:   make(map[string]int),
	}
}

// Arena returns the driven arena.
func (d *Driver) Arena() *shape.Arena { return d.arena }

// Caches returns the inline cache table.
func (d *Driver) Caches() *ic.Table { return d.caches }

// Object returns the object bound to name.
func (d *Driver) Object(name string) (*shape.Object, bool) {
	o, ok := d.objects[name]
	return o, ok
}

// Site returns the inline cache for the named site, or nil if the script
// never used it.
func (d *Driver) Site(name string) *ic.Site {
	pc, ok := d.sites[name]
	if !ok {
		return nil
	}
	return d.caches.Get(pc)
}

// Run executes every line of r. It stops at the first failing line.
func (d *Driver) Run(r io.Reader) error {
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		if err := d.Exec(sc.Text()); err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return sc.Err()
}

// Exec executes one script line. Shape contract violations are returned
// as errors wrapping *shape.ContractError.
func (d *Driver) Exec(line string) (err error) {
	if i := strings.IndexByte(line, '#'); i >= 0 && !strings.Contains(line[:i], `"`) {
		line = line[:i]
	}
	args, err := split(line)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	defer func() {
		if r := recover(); r != nil {
			var ce *shape.ContractError
			if e, ok := r.(error); ok && errors.As(e, &ce) {
				err = fmt.Errorf("%s: %w", cmd, ce)
				return
			}
			panic(r)
		}
	}()
	log.Debugf("exec %q", line)

	switch cmd {
	case "new":
		return d.cmdNew(args)
	case "put":
		return d.cmdPut(args)
	case "define":
		return d.cmdDefine(args)
	case "accessor":
		return d.cmdAccessor(args)
	case "delete":
		return d.cmdDelete(args)
	case "reconfigure":
		return d.cmdReconfigure(args)
	case "proto":
		return d.cmdProto(args)
	case "get":
		return d.cmdGet(args)
	case "preventext", "seal", "freeze", "flatten":
		return d.cmdIntegrity(cmd, args)
	case "release":
		return d.cmdRelease(args)
	case "keys":
		return d.cmdKeys(args)
	case "shape":
		return d.cmdShape(args)
	case "ic":
		return d.cmdIC(args)
	case "stats":
		return d.cmdStats()
	case "assert":
		return d.cmdAssert(args)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
}

// Close releases every object the script created.
func (d *Driver) Close() {
	names := make([]string, 0, len(d.objects))
	for name := range d.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d.objects[name].Release()
		delete(d.objects, name)
	}
}

func (d *Driver) cmdNew(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("%w: new NAME [PROTO|null] [exotic] [immutable-proto]", ErrUsage)
	}
	name := args[0]
	if _, ok := d.objects[name]; ok {
		return fmt.Errorf("%w: %s already exists", ErrRejected, name)
	}
	var proto *shape.Object
	var ti shape.TypeInfo
	for i, a := range args[1:] {
		switch a {
		case "exotic":
			ti |= shape.OverridesGetOwnProperty
		case "immutable-proto":
			ti |= shape.ImmutablePrototype
		default:
			if i != 0 {
				return fmt.Errorf("%w: unknown flag %q", ErrUsage, a)
			}
			p, err := d.protoArg(a)
			if err != nil {
				return err
			}
			proto = p
		}
	}
	d.objects[name] = shape.NewObjectWithType(d.arena, proto, ti)
	return nil
}

func (d *Driver) cmdPut(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: put OBJ PROP VALUE", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	v, err := d.value(args[2])
	if err != nil {
		return err
	}
	if !o.Put(args[1], v) {
		return fmt.Errorf("%w: put %s.%s", ErrRejected, args[0], args[1])
	}
	return nil
}

func (d *Driver) cmdDefine(args []string) error {
	if len(args) != 4 {
		return fmt.Errorf("%w: define OBJ PROP ATTRS VALUE", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	v, err := d.value(args[3])
	if err != nil {
		return err
	}
	attrs := shape.ParseAttributes(args[2]) &^ shape.Accessor
	if _, ok := o.AddProperty(args[1], v, attrs); !ok {
		return fmt.Errorf("%w: define %s.%s", ErrRejected, args[0], args[1])
	}
	return nil
}

func (d *Driver) cmdAccessor(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: accessor OBJ PROP", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	getter := "get " + args[1]
	setter := "set " + args[1]
	if !o.DefineAccessor(args[1], getter, setter, shape.Enumerable|shape.Configurable) {
		return fmt.Errorf("%w: accessor %s.%s", ErrRejected, args[0], args[1])
	}
	return nil
}

func (d *Driver) cmdDelete(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: delete OBJ PROP", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	if !o.DeleteProperty(args[1]) {
		return fmt.Errorf("%w: delete %s.%s", ErrRejected, args[0], args[1])
	}
	return nil
}

func (d *Driver) cmdReconfigure(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: reconfigure OBJ PROP ATTRS", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	p, ok := o.Shape().Get(args[1])
	if !ok {
		return fmt.Errorf("%w: %s has no property %s", ErrRejected, args[0], args[1])
	}
	attrs := shape.ParseAttributes(args[2])&^shape.Accessor | p.Attrs&shape.Accessor
	if !o.Reconfigure(args[1], attrs) {
		return fmt.Errorf("%w: reconfigure %s.%s", ErrRejected, args[0], args[1])
	}
	return nil
}

func (d *Driver) cmdProto(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: proto OBJ PROTO|null", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	proto, err := d.protoArg(args[1])
	if err != nil {
		return err
	}
	if !o.SetPrototype(proto) {
		return fmt.Errorf("%w: proto %s %s", ErrRejected, args[0], args[1])
	}
	return nil
}

func (d *Driver) cmdGet(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: get SITE OBJ PROP", ErrUsage)
	}
	o, err := d.object(args[1])
	if err != nil {
		return err
	}
	pc := d.sitePC(args[0])
	v, ok := d.caches.Access(pc, o, args[2])
	site := d.caches.Get(pc)
	if !ok {
		fmt.Fprintf(d.out, "%s.%s = undefined [%s]\n", args[1], args[2], site.CurrentState())
		return nil
	}
	fmt.Fprintf(d.out, "%s.%s = %s [%s]\n", args[1], args[2], d.format(v), site.CurrentState())
	return nil
}

func (d *Driver) cmdIntegrity(cmd string, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: %s OBJ", ErrUsage, cmd)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	switch cmd {
	case "preventext":
		o.PreventExtensions()
	case "seal":
		o.Seal()
	case "freeze":
		o.Freeze()
	case "flatten":
		if !o.Shape().IsDictionary() {
			return fmt.Errorf("%w: %s is not in dictionary mode", ErrRejected, args[0])
		}
		o.Flatten()
	}
	return nil
}

func (d *Driver) cmdRelease(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: release OBJ", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	o.Release()
	delete(d.objects, args[0])
	d.caches.Sweep(d.arena)
	return nil
}

func (d *Driver) cmdKeys(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: keys OBJ", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(d.out, "%s: [%s]\n", args[0], strings.Join(o.OwnKeys(), " "))
	return nil
}

func (d *Driver) cmdShape(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: shape OBJ", ErrUsage)
	}
	o, err := d.object(args[0])
	if err != nil {
		return err
	}
	s := o.Shape()
	fmt.Fprintf(d.out, "%s: %s\n", args[0], s)
	s.PropertyMap().Each(func(p shape.Property) bool {
		fmt.Fprintf(d.out, "  [%d] %s %s\n", p.Offset, p.Name, p.Attrs)
		return true
	})
	return nil
}

func (d *Driver) cmdIC(args []string) error {
	names := args
	if len(names) == 0 {
		for name := range d.sites {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	for _, name := range names {
		site := d.Site(name)
		if site == nil {
			return fmt.Errorf("%w: no site %q", ErrRejected, name)
		}
		fmt.Fprintf(d.out, "%s: %s entries=%d hits=%d misses=%d\n",
			name, site.CurrentState(), len(site.Entries()), site.Hits, site.Misses)
	}
	return nil
}

func (d *Driver) cmdStats() error {
	st := d.arena.Stats()
	fmt.Fprintf(d.out, "shapes: %s live, %s allocated, %s freed, %s dictionaries\n",
		humanize.Comma(int64(st.Live)), humanize.Comma(int64(st.Allocated)),
		humanize.Comma(int64(st.Freed)), humanize.Comma(int64(st.Dictionaries)))
	fmt.Fprintf(d.out, "transitions: %s hits, %s misses, %s fan-out overflows\n",
		humanize.Comma(int64(st.TransitionHits)), humanize.Comma(int64(st.TransitionMisses)),
		humanize.Comma(int64(st.FanoutOverflows)))
	cs := d.caches.Stats()
	fmt.Fprintf(d.out, "caches: %d sites (%d mono, %d poly, %d generic, %d dictionary), hit rate %.1f%%\n",
		cs.Sites, cs.Monomorphic, cs.Polymorphic, cs.Generic, cs.Dictionary, cs.HitRate)
	return nil
}

func (d *Driver) cmdAssert(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: assert KIND ARGS...", ErrUsage)
	}
	kind, args := args[0], args[1:]
	switch kind {
	case "same-shape", "other-shape":
		if len(args) != 2 {
			return fmt.Errorf("%w: assert %s OBJ OBJ", ErrUsage, kind)
		}
		a, err := d.object(args[0])
		if err != nil {
			return err
		}
		b, err := d.object(args[1])
		if err != nil {
			return err
		}
		same := shape.ShapeOf(a) == shape.ShapeOf(b)
		if same != (kind == "same-shape") {
			return fmt.Errorf("%w: %s: %s has %s, %s has %s", ErrAssertion, kind, args[0], shape.ShapeOf(a), args[1], shape.ShapeOf(b))
		}
	case "dictionary":
		if len(args) != 1 {
			return fmt.Errorf("%w: assert dictionary OBJ", ErrUsage)
		}
		o, err := d.object(args[0])
		if err != nil {
			return err
		}
		if !o.Shape().IsDictionary() {
			return fmt.Errorf("%w: %s is not in dictionary mode", ErrAssertion, args[0])
		}
	case "state":
		if len(args) != 2 {
			return fmt.Errorf("%w: assert state SITE STATE", ErrUsage)
		}
		site := d.Site(args[0])
		if site == nil {
			return fmt.Errorf("%w: no site %q", ErrAssertion, args[0])
		}
		if got := site.CurrentState().String(); got != args[1] {
			return fmt.Errorf("%w: site %s is %s, want %s", ErrAssertion, args[0], got, args[1])
		}
	case "value":
		if len(args) != 3 {
			return fmt.Errorf("%w: assert value OBJ PROP VALUE", ErrUsage)
		}
		o, err := d.object(args[0])
		if err != nil {
			return err
		}
		want, err := d.value(args[2])
		if err != nil {
			return err
		}
		got, _ := o.Get(args[1])
		if got != want {
			return fmt.Errorf("%w: %s.%s = %s, want %s", ErrAssertion, args[0], args[1], d.format(got), d.format(want))
		}
	default:
		return fmt.Errorf("%w: unknown assertion %q", ErrUsage, kind)
	}
	return nil
}

func (d *Driver) object(name string) (*shape.Object, error) {
	o, ok := d.objects[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownObject, name)
	}
	return o, nil
}

func (d *Driver) protoArg(name string) (*shape.Object, error) {
	if name == "null" {
		return nil, nil
	}
	return d.object(name)
}

// sitePC maps a site name to a stable PC, numbering sites in order of
// first use.
func (d *Driver) sitePC(name string) int {
	if pc, ok := d.sites[name]; ok {
		return pc
	}
	pc := len(d.sites)
	d.sites[name] = pc
	return pc
}

func (d *Driver) value(tok string) (shape.Value, error) {
	switch {
	case tok == "null":
		return nil, nil
	case tok == "true":
		return true, nil
	case tok == "false":
		return false, nil
	case strings.HasPrefix(tok, "@"):
		return d.object(tok[1:])
	case strings.HasPrefix(tok, `"`):
		s, err := strconv.Unquote(tok)
		if err != nil {
			return nil, fmt.Errorf("%w: bad string %s", ErrUsage, tok)
		}
		return s, nil
	}
	n, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad value %q", ErrUsage, tok)
	}
	return n, nil
}

func (d *Driver) format(v shape.Value) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case *shape.Object:
		for name, o := range d.objects {
			if o == v {
				return "@" + name
			}
		}
		return v.String()
	case *shape.AccessorPair:
		return fmt.Sprintf("accessor(%v, %v)", v.Getter, v.Setter)
	}
	return fmt.Sprint(v)
}

// split breaks a line into fields, keeping double-quoted strings intact.
func split(line string) ([]string, error) {
	var out []string
	for i := 0; i < len(line); {
		switch c := line[i]; {
		case c == ' ' || c == '\t':
			i++
		case c == '"':
			j := i + 1
			for ; j < len(line) && line[j] != '"'; j++ {
				if line[j] == '\\' {
					j++
				}
			}
			if j >= len(line) {
				return nil, fmt.Errorf("%w: unterminated string", ErrUsage)
			}
			out = append(out, line[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(line) && line[j] != ' ' && line[j] != '\t' {
				j++
			}
			out = append(out, line[i:j])
			i = j
		}
	}
	return out, nil
}
