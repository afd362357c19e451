// Command dbuswire exercises the dbuswire codec from the command line:
// dumping captured messages, generating random ones, and round-tripping
// a message through parse/serialize to check for byte drift.
package main

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"os"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/mds/heapq"
	"github.com/kr/pretty"

	dbus "github.com/dbuswire/dbuswire"
	"github.com/dbuswire/dbuswire/fragments"
)

func main() {
	root := &command.C{
		Name:  "dbuswire",
		Usage: "command args...",
		Commands: []*command.C{
			{
				Name:  "dump",
				Usage: "dump <file>",
				Help:  "Parse and pretty-print every message concatenated in a file, or stdin with \"-\".",
				Run:   command.Adapt(runDump),
			},
			{
				Name:     "gen",
				Usage:    "gen",
				Help:     "Generate random messages and write their serialized bytes to stdout.",
				SetFlags: command.Flags(flax.MustBind, &genArgs),
				Run:      command.Adapt(runGen),
			},
			{
				Name:  "roundtrip",
				Usage: "roundtrip <file>",
				Help:  "Parse a single message, re-serialize it, and report whether the output is byte-identical to the input.",
				Run:   command.Adapt(runRoundtrip),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	env := root.NewEnv(nil)
	command.RunOrFail(env, os.Args[1:])
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func runDump(env *command.Env, path string) error {
	f, err := openInput(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var msgs []*dbus.Message
	for {
		msg, err := readMessage(f)
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("parsing message %d: %w", len(msgs), err)
		}
		msgs = append(msgs, msg)
	}

	q := heapq.New(func(a, b *dbus.Message) int {
		return cmp.Compare(a.Header.Serial, b.Header.Serial)
	})
	for _, m := range msgs {
		q.Add(m)
	}
	for !q.IsEmpty() {
		m, _ := q.Pop()
		fmt.Printf("%# v\n\n", pretty.Formatter(m))
	}
	return nil
}

var genArgs struct {
	Seed     int64  `flag:"seed,default=1,Seed for the random generator"`
	Count    int    `flag:"count,default=1,Number of messages to generate"`
	MaxDepth int    `flag:"max-depth,default=4,Maximum nesting depth of generated values"`
	Budget   int    `flag:"budget,default=256,Shared budget for struct fields and array elements"`
	Out      string `flag:"out,Output file path (default stdout)"`
}

func runGen(env *command.Env) error {
	out := io.Writer(os.Stdout)
	if genArgs.Out != "" {
		f, err := os.Create(genArgs.Out)
		if err != nil {
			return fmt.Errorf("creating %s: %w", genArgs.Out, err)
		}
		defer f.Close()
		out = f
	}

	for i := 0; i < genArgs.Count; i++ {
		seed := uint64(genArgs.Seed) + uint64(i)
		msg := randomMessage(seed, genArgs.MaxDepth, genArgs.Budget, uint32(i))
		wire, err := msg.Serialize(fragments.LittleEndian)
		if err != nil {
			return fmt.Errorf("serializing generated message %d: %w", i, err)
		}
		if _, err := out.Write(wire); err != nil {
			return fmt.Errorf("writing generated message %d: %w", i, err)
		}
	}
	return nil
}

func randomMessage(seed uint64, maxDepth, budget int, serial uint32) *dbus.Message {
	r := dbus.NewRandom(seed, budget)
	arena := &dbus.TypeArena{}
	typ := r.RandomType(arena, maxDepth)
	val := r.RandomValue(typ, maxDepth)

	sig, err := dbus.NewSignatureValue(dbus.TypeSignature(typ))
	if err != nil {
		panic("dbuswire: gen: " + err.Error())
	}
	path, err := dbus.NewPath("/dbuswire/generated")
	if err != nil {
		panic("dbuswire: gen: " + err.Error())
	}
	iface, err := dbus.NewString("dbuswire.Generated")
	if err != nil {
		panic("dbuswire: gen: " + err.Error())
	}
	member, err := dbus.NewString("Message")
	if err != nil {
		panic("dbuswire: gen: " + err.Error())
	}

	return &dbus.Message{
		Header: dbus.Header{
			Order:           fragments.LittleEndian,
			Type:            dbus.MsgTypeSignal,
			ProtocolVersion: dbus.ProtocolVersion,
			Serial:          serial,
			Fields: []dbus.HeaderField{
				{Code: dbus.HdrPath, Value: path},
				{Code: dbus.HdrInterface, Value: iface},
				{Code: dbus.HdrMember, Value: member},
				{Code: dbus.HdrSignature, Value: sig},
			},
		},
		Body: []dbus.DValue{val},
	}
}

func runRoundtrip(env *command.Env, path string) error {
	f, err := openInput(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	original, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	var msg dbus.Message
	p := dbus.ParseMessage(&msg)
	if err := feedFromReader(p, bytes.NewReader(original)); err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	if err := msg.Valid(); err != nil {
		return fmt.Errorf("validating: %w", err)
	}

	again, err := msg.Serialize(msg.Header.Order)
	if err != nil {
		return fmt.Errorf("re-serializing: %w", err)
	}

	consumed := original[:p.Pos()]
	if bytes.Equal(consumed, again) {
		fmt.Println("round trip: byte-identical")
		return nil
	}
	fmt.Printf("round trip: MISMATCH (%d bytes in, %d bytes out)\n", len(consumed), len(again))
	return fmt.Errorf("round trip produced different bytes")
}

// readMessage parses one complete message from r, returning io.EOF if r is
// exhausted before any bytes of a new message are read.
func readMessage(r io.Reader) (*dbus.Message, error) {
	var msg dbus.Message
	p := dbus.ParseMessage(&msg)
	if err := feedFromReader(p, r); err != nil {
		return nil, err
	}
	return &msg, nil
}

// feedFromReader drives p to completion by reading exactly as many bytes
// as it asks for at each step. io.ReadFull retries short reads, so a
// reader that delivers a step's bytes in pieces is handled; an EOF in the
// middle of a step is reported as io.ErrUnexpectedEOF.
func feedFromReader(p *fragments.Parser, r io.Reader) error {
	first := true
	for !p.Done() {
		n := int(p.MinRequired())
		if n == 0 {
			n = 1
		}
		if max := p.MaxRequired(); uint64(n) > max {
			n = int(max)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF && first {
				return io.EOF
			}
			return err
		}
		first = false
		if err := p.Feed(buf); err != nil {
			return err
		}
	}
	return nil
}
