package types

import (
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
)

// BigInt is a big.Int wrapper which marshals JSON to a string representation
// of the big number. Gas prices cross the API as decimal strings, so all
// wei amounts in the data model use this type.
type BigInt big.Int

// NewInt creates a new BigInt from the given integer value.
func NewInt(x int64) *BigInt {
	return (*BigInt)(big.NewInt(x))
}

// MarshalText returns the decimal string representation of the big number.
// If the receiver is nil, we return "0".
func (i *BigInt) MarshalText() ([]byte, error) {
	if i == nil {
		return []byte("0"), nil
	}
	return (*big.Int)(i).MarshalText()
}

// UnmarshalText parses the text representation into the big number.
func (i *BigInt) UnmarshalText(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	return (*big.Int)(i).UnmarshalText(data)
}

// UnmarshalJSON implements the json.Unmarshaler interface.
// It supports both string and numeric JSON representations.
func (i *BigInt) UnmarshalJSON(data []byte) error {
	if i == nil {
		return fmt.Errorf("cannot unmarshal into nil BigInt")
	}
	// If it's a string representation (with double quotes)
	if len(data) > 0 && data[0] == '"' {
		return i.UnmarshalText(data[1 : len(data)-1])
	}
	// If it's a numeric representation (without quotes)
	return i.UnmarshalText(data)
}

// MarshalCBOR explicitly encodes BigInt as a CBOR text string.
func (i *BigInt) MarshalCBOR() ([]byte, error) {
	txt, err := i.MarshalText()
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(string(txt))
}

// UnmarshalCBOR decodes a CBOR text string into BigInt.
func (i *BigInt) UnmarshalCBOR(data []byte) error {
	var s string
	if err := cbor.Unmarshal(data, &s); err != nil {
		return err
	}
	return i.UnmarshalText([]byte(s))
}

// String returns the string representation of the big number
func (i *BigInt) String() string {
	return (*big.Int)(i).String()
}

// MathBigInt converts i to a math/big *Int.
func (i *BigInt) MathBigInt() *big.Int {
	return (*big.Int)(i)
}

// SetUint64 sets the value of x to the big number
func (i *BigInt) SetUint64(x uint64) *BigInt {
	return (*BigInt)(i.MathBigInt().SetUint64(x))
}

// Uint64 returns the uint64 representation of the big number
func (i *BigInt) Uint64() uint64 {
	return (*big.Int)(i).Uint64()
}

// Cmp compares i and x, returning -1, 0 or +1.
func (i *BigInt) Cmp(x *BigInt) int {
	return i.MathBigInt().Cmp(x.MathBigInt())
}

// Clone returns a copy of i, or nil if i is nil.
func (i *BigInt) Clone() *BigInt {
	if i == nil {
		return nil
	}
	return (*BigInt)(new(big.Int).Set(i.MathBigInt()))
}

// MinimumBump returns the smallest replacement price the mempool accepts for
// a transaction previously priced at i, i.e. ceil(1.1 * i).
func (i *BigInt) MinimumBump() *BigInt {
	if i == nil {
		return nil
	}
	// ceil(x*11/10) == (x*11 + 9) / 10
	out := new(big.Int).Mul(i.MathBigInt(), big.NewInt(11))
	out.Add(out, big.NewInt(9))
	out.Div(out, big.NewInt(10))
	return (*BigInt)(out)
}
