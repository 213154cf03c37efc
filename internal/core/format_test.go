package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		v    any
		dt   DataType
		tag  string
		want string
	}{
		{"nil is empty", nil, TypeNumber, "", ""},
		{"text passthrough", "hello", TypeText, "", "hello"},
		{"number default", 1234.5, TypeNumber, "", "1,234.5"},
		{"number default trims", "2.50000", TypeNumber, "", "2.5"},
		{"number default rounds to three", 0.123456, TypeNumber, "", "0.123"},
		{"negative zero", -0.0001, TypeNumber, "", "0"},
		{"integer", "1234.6", TypeNumber, FormatInteger, "1235"},
		{"decimal1", 3.14159, TypeNumber, FormatDecimal1, "3.1"},
		{"decimal2", "7", TypeNumber, FormatDecimal2, "7.00"},
		{"thousands", 1234567.4, TypeNumber, FormatGrouped, "1,234,567"},
		{"unparseable number", "n/a", TypeNumber, "", "n/a"},
		{"currency default", "1200", TypeCurrency, "", "$1,200.00"},
		{"currency negative", -5.5, TypeCurrency, "", "-$5.50"},
		{"currency integer", "$1,234.56", TypeCurrency, FormatCurrencyInteger, "$1,235"},
		{"currency plain", 1234.5, TypeCurrency, FormatCurrencyPlain, "$1234.50"},
		{"currency with code", "USD 40", TypeCurrency, "", "$40.00"},
		{"currency garbage", "free", TypeCurrency, "", "free"},
		{"date us", "2024-03-05", TypeDate, FormatDateUS, "03/05/2024"},
		{"date eu", "2024-03-05", TypeDate, FormatDateEU, "05/03/2024"},
		{"date iso", "03/05/2024", TypeDate, FormatDateISO, "2024-03-05"},
		{"date long", "2024-03-05", TypeDate, FormatDateLong, "Mar 05, 2024"},
		{"date day long", "2024-03-05", TypeDate, FormatDateDayLong, "05 Mar 2024"},
		{"date serial", "45000", TypeDate, FormatDateISO, "2023-03-15"},
		{"date unknown tag uses us", "2024-03-05", TypeDate, "bogus", "03/05/2024"},
		{"date unparseable", "someday", TypeDate, FormatDateISO, "someday"},
		{"boolean yes", "true", TypeBoolean, "", "Yes"},
		{"boolean no", "0", TypeBoolean, "", "No"},
		{"boolean other", "maybe", TypeBoolean, "", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.v, tt.dt, tt.tag))
		})
	}
}

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat(TypeNumber, ""))
	assert.True(t, ValidFormat(TypeNumber, FormatDecimal2))
	assert.True(t, ValidFormat(TypeDate, FormatDateISO))
	assert.False(t, ValidFormat(TypeNumber, FormatDateISO))
	assert.False(t, ValidFormat(TypeText, FormatInteger))
}

func TestGroupThousands(t *testing.T) {
	assert.Equal(t, "999", groupThousands("999"))
	assert.Equal(t, "1,000", groupThousands("1000"))
	assert.Equal(t, "-12,345.67", groupThousands("-12345.67"))
	assert.Equal(t, "1,234,567", groupThousands("1234567"))
	assert.Equal(t, "-1,000,000.5", groupThousands("-1000000.5"))
	assert.Equal(t, "0.125", groupThousands("0.125"))
	assert.Equal(t, "18,446,744,073,709,551,615", groupThousands("18446744073709551615"))
	assert.Equal(t, "123456789012345678901234", groupThousands("123456789012345678901234"))
}
