// Package amount 在人类可读的十进制金额与链上最小单位整数之间换算。
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	xerrors "ChatWallet/internal/errors"
)

// CodeInvalidAmount 表示金额无法解析或不为正数。
const CodeInvalidAmount xerrors.Code = "INVALID_AMOUNT"

func init() {
	xerrors.Register(CodeInvalidAmount, xerrors.Attributes{
		Message:  "金额格式无效",
		Severity: xerrors.SeverityInfo,
		Public:   true,
	})
}

// MaxBits 是最小单位金额的位宽上限，与 EVM uint256 一致。
const MaxBits = 256

// maxIntegerDigits 覆盖 2^256 的十进制位数。
const maxIntegerDigits = 78

// ToSmallestUnit 把十进制金额按精度放大，超出精度的小数位直接截断，不做四舍五入。
func ToSmallestUnit(value string, decimals int) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, xerrors.New(CodeInvalidAmount, "Please provide an amount.")
	}
	if decimals < 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "negative decimals")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, xerrors.Wrap(CodeInvalidAmount, err, fmt.Sprintf("I could not read the amount %q.", value))
	}
	if !d.IsPositive() {
		return nil, xerrors.New(CodeInvalidAmount, "The amount must be greater than zero.")
	}
	// 放大前按位数估算，避免 1e5000000 这类输入展开成巨大整数。
	digits := int64(d.NumDigits()) + int64(d.Exponent()) + int64(decimals)
	if digits <= 0 {
		return nil, tooSmall()
	}
	if digits > maxIntegerDigits {
		return nil, tooLarge()
	}
	scaled := d.Shift(int32(decimals)).Truncate(0).BigInt()
	if scaled.Sign() == 0 {
		return nil, tooSmall()
	}
	if scaled.BitLen() > MaxBits {
		return nil, tooLarge()
	}
	return scaled, nil
}

func tooSmall() error {
	return xerrors.New(CodeInvalidAmount, "The amount is smaller than the token's smallest unit.")
}

func tooLarge() error {
	return xerrors.New(CodeInvalidAmount, "The amount is too large.")
}

// FromSmallestUnit 把最小单位整数还原为十进制字符串，去掉多余的尾随零。
func FromSmallestUnit(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, int32(-decimals)).String()
}

// Format 以最多 precision 位小数展示金额，截断而非舍入。
func Format(value *big.Int, decimals, precision int) string {
	if value == nil {
		return "0"
	}
	d := decimal.NewFromBigInt(value, int32(-decimals))
	if precision >= 0 && precision < decimals {
		d = d.Truncate(int32(precision))
	}
	return d.String()
}
