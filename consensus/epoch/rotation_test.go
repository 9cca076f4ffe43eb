package epoch

import (
	"testing"

	"github.com/5uwifi/nexuschain/common"
)

type fixedValidatorSet []common.Address

func (s fixedValidatorSet) GetValidatorCount() int { return len(s) }

func (s fixedValidatorSet) GetValidatorByIndex(i int) (common.Address, bool) {
	if i < 0 || i >= len(s) {
		return common.Address{}, false
	}
	return s[i], true
}

func TestRotationExpectedValidatorRoundRobin(t *testing.T) {
	a := common.AddressFromName("a")
	b := common.AddressFromName("b")
	c := common.AddressFromName("c")
	r, err := NewRotation(fixedValidatorSet{a, b, c})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		index uint64
		want  common.Address
	}{
		{0, a}, {1, b}, {2, c}, {3, a}, {4, b}, {5, c}, {6, a},
	}
	for _, tc := range cases {
		got, err := r.ExpectedValidator(tc.index)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Fatalf("epoch %d: got %s, want %s", tc.index, got.Hex(), tc.want.Hex())
		}
	}
}

func TestRotationIsCurrentValidator(t *testing.T) {
	a := common.AddressFromName("a")
	b := common.AddressFromName("b")
	r, err := NewRotation(fixedValidatorSet{a, b})
	if err != nil {
		t.Fatal(err)
	}
	ok, err := r.IsCurrentValidator(0, a)
	if err != nil || !ok {
		t.Fatalf("expected a to hold epoch 0, got ok=%v err=%v", ok, err)
	}
	ok, err = r.IsCurrentValidator(0, b)
	if err != nil || ok {
		t.Fatalf("expected b not to hold epoch 0, got ok=%v err=%v", ok, err)
	}
	ok, err = r.IsCurrentValidator(1, b)
	if err != nil || !ok {
		t.Fatalf("expected b to hold epoch 1, got ok=%v err=%v", ok, err)
	}
}

func TestRotationEmptyValidatorSet(t *testing.T) {
	r, err := NewRotation(fixedValidatorSet{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.ExpectedValidator(0); err != ErrEmptyValidatorSet {
		t.Fatalf("got err=%v, want ErrEmptyValidatorSet", err)
	}
}

func TestRotationLookupCacheConsistentWithDirect(t *testing.T) {
	a := common.AddressFromName("a")
	b := common.AddressFromName("b")
	r, err := NewRotation(fixedValidatorSet{a, b})
	if err != nil {
		t.Fatal(err)
	}
	first, err := r.ExpectedValidator(7)
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.ExpectedValidator(7)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("expected cached lookup to agree with direct lookup: %s vs %s", first.Hex(), second.Hex())
	}
}
