package dbus

import (
	"bytes"
	"math"
	"testing"

	"github.com/dbuswire/dbuswire/fragments"
)

func TestRandomDeterministic(t *testing.T) {
	const seed = 12345
	r1 := NewRandom(seed, 1000)
	r2 := NewRandom(seed, 1000)

	arena1 := &TypeArena{}
	arena2 := &TypeArena{}
	for i := 0; i < 50; i++ {
		t1 := r1.RandomType(arena1, 5)
		t2 := r2.RandomType(arena2, 5)
		if !TypesEqual(t1, t2) {
			t.Fatalf("iteration %d: types diverged: %s vs %s", i, TypeSignature(t1), TypeSignature(t2))
		}
		v1 := r1.RandomValue(t1, 5)
		v2 := r2.RandomValue(t2, 5)
		w1 := serializeValue(fragments.LittleEndian, v1)
		w2 := serializeValue(fragments.LittleEndian, v2)
		if !bytes.Equal(w1, w2) {
			t.Fatalf("iteration %d: values diverged under identical seeds", i)
		}
	}
}

func TestRandomTypeRespectsMaxDepthZero(t *testing.T) {
	r := NewRandom(1, 1000)
	arena := &TypeArena{}
	for i := 0; i < 200; i++ {
		typ := r.RandomType(arena, 0)
		switch typ.(type) {
		case *variantType, *ArrayType, *StructType, *DictEntryType:
			t.Fatalf("RandomType(maxdepth=0) produced composite/variant type %s", TypeSignature(typ))
		}
	}
}

func TestRandomValueRoundTripManySeeds(t *testing.T) {
	const iterations = 2000
	for seed := uint64(0); seed < iterations; seed++ {
		for _, order := range []fragments.ByteOrder{fragments.LittleEndian, fragments.BigEndian} {
			r := NewRandom(seed, 1000)
			arena := &TypeArena{}
			typ := r.RandomType(arena, 20)
			v := r.RandomValue(typ, 20)

			wire := serializeValue(order, v)
			got := parseValue(t, order, typ, wire)
			again := serializeValue(order, got)
			if !bytes.Equal(wire, again) {
				t.Fatalf("seed %d under %v: serialize->parse->serialize not byte-equal", seed, order)
			}
		}
	}
}

func TestRandomDoubleProducesSpecialValues(t *testing.T) {
	r := NewRandom(7, 1000)
	var sawInf, sawNaN, sawZero bool
	for i := 0; i < 500; i++ {
		d := r.randomDouble()
		switch {
		case math.IsInf(d, 1):
			sawInf = true
		case math.IsNaN(d):
			sawNaN = true
		case d == 0.0:
			sawZero = true
		}
	}
	if !sawInf {
		t.Error("randomDouble never produced +Inf across 500 draws")
	}
	if !sawNaN {
		t.Error("randomDouble never produced NaN across 500 draws")
	}
	if !sawZero {
		t.Error("randomDouble never produced 0.0 across 500 draws")
	}
}

func TestRandomStringLengthBounds(t *testing.T) {
	r := NewRandom(3, 1000)
	for i := 0; i < 200; i++ {
		s := r.randomString()
		if len(s) > 32 {
			t.Fatalf("randomString produced %d bytes, want <= 32", len(s))
		}
		for _, b := range []byte(s) {
			if b < 1 || b > 127 {
				t.Fatalf("randomString produced out-of-range byte %d", b)
			}
		}
	}
}

func TestRandomBudgetDepletes(t *testing.T) {
	r := NewRandom(1, 4)
	n1 := r.randomNumFields()
	n2 := r.randomArraySize()
	if n1 < 0 || n2 < 0 {
		t.Fatal("random counts must be non-negative")
	}
	// With a budget of 4, no single draw should be able to produce a count
	// larger than the original budget.
	if n1 > 4 || n2 > 4 {
		t.Errorf("random counts exceeded the initial budget: n1=%d n2=%d", n1, n2)
	}
}
