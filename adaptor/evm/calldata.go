package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vortexdex/dexproxy/types"
)

// Hand-rolled ABI encoding for the handful of fixed-shape calls the venue
// makes. Every argument is a 32-byte word; dynamic types never occur here.

func selector(signature string) []byte {
	return crypto.Keccak256([]byte(signature))[:4]
}

var (
	approveSelector  = selector("approve(address,uint256)")
	transferSelector = selector("transfer(address,uint256)")
	depositSelector  = selector("deposit()")
	withdrawSelector = selector("withdraw(uint256)")
	// placeOrder(symbol, isBuy, quantity, price) on the venue exchange
	placeOrderSelector = selector("placeOrder(bytes32,bool,uint256,uint256)")
)

func word(buf []byte, arg []byte) []byte {
	return append(buf, common.LeftPadBytes(arg, 32)...)
}

func approveCalldata(spender common.Address, amount *big.Int) []byte {
	data := append([]byte(nil), approveSelector...)
	data = word(data, spender.Bytes())
	return word(data, amount.Bytes())
}

func transferCalldata(to common.Address, amount *big.Int) []byte {
	data := append([]byte(nil), transferSelector...)
	data = word(data, to.Bytes())
	return word(data, amount.Bytes())
}

func depositCalldata() []byte {
	return append([]byte(nil), depositSelector...)
}

func withdrawCalldata(amount *big.Int) []byte {
	data := append([]byte(nil), withdrawSelector...)
	return word(data, amount.Bytes())
}

func orderCalldata(o *types.OrderFields) ([]byte, error) {
	if o == nil {
		return nil, fmt.Errorf("order fields missing")
	}
	var isBuy *big.Int
	switch strings.ToUpper(o.Side) {
	case "BUY":
		isBuy = big.NewInt(1)
	case "SELL":
		isBuy = big.NewInt(0)
	default:
		return nil, fmt.Errorf("side must be BUY or SELL, got %q", o.Side)
	}
	quantity, err := parseAmount(o.Quantity, orderScaleDecimals)
	if err != nil {
		return nil, fmt.Errorf("quantity: %w", err)
	}
	price, err := parseAmount(o.Price, orderScaleDecimals)
	if err != nil {
		return nil, fmt.Errorf("price: %w", err)
	}
	var symbol [32]byte
	copy(symbol[:], o.Symbol)

	data := append([]byte(nil), placeOrderSelector...)
	data = append(data, symbol[:]...)
	data = word(data, isBuy.Bytes())
	data = word(data, quantity.Bytes())
	return word(data, price.Bytes()), nil
}
