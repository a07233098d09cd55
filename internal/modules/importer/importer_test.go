package importer

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedgebook/internal/domain"
)

func TestParse(t *testing.T) {
	text := "類型,方向,Call/Put,履約價,權利金,口數\n" +
		"option,buy,put,27900,45.5,2\r\n" +
		"\n" +
		"選擇權, 賣出 ,買權,28600,64.25,4\n" +
		"期貨,賣,,0,22500,1\n"

	legs, err := Parse(text)
	require.NoError(t, err)
	require.Len(t, legs, 3)

	assert.Equal(t, domain.TypeOption, legs[0].Type)
	assert.Equal(t, domain.SideBuy, legs[0].Side)
	assert.Equal(t, domain.Put, legs[0].CallPut)
	assert.Equal(t, int64(27900), legs[0].Strike)
	assert.True(t, legs[0].Premium.Equal(decimal.RequireFromString("45.5")))
	assert.Equal(t, int64(2), legs[0].Qty)
	assert.Equal(t, int64(ImportMultiplier), legs[0].Multiplier)
	assert.Empty(t, legs[0].ID)

	assert.Equal(t, domain.SideSell, legs[1].Side)
	assert.Equal(t, domain.Call, legs[1].CallPut)
	assert.Equal(t, int64(4), legs[1].Qty)

	assert.Equal(t, domain.TypeFuture, legs[2].Type)
	assert.Equal(t, domain.SideSell, legs[2].Side)
	assert.True(t, legs[2].Price.Equal(decimal.NewFromInt(22500)))
	assert.Equal(t, int64(50), legs[2].Multiplier)
}

func TestParse_EnglishHeaderSkipped(t *testing.T) {
	legs, err := Parse("type,side,callPut,strike,premium,qty\nOPTION,BUY,C,23000,10,1")
	require.NoError(t, err)
	require.Len(t, legs, 1)
	assert.Equal(t, domain.Call, legs[0].CallPut)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{"too few fields", "option,buy,put,22000,150", 1},
		{"unknown type", "option,buy,put,22000,150,2\nswap,buy,put,22000,150,2", 2},
		{"unknown side", "option,hold,put,22000,150,2", 1},
		{"bad number", "option,buy,put,abc,150,2", 1},
		{"zero qty", "option,buy,put,22000,150,0", 1},
		{"zero future price", "\nfuture,sell,,0,0,1", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legs, err := Parse(tt.text)
			require.Error(t, err)
			assert.Nil(t, legs)

			var lineErr *LineError
			require.True(t, errors.As(err, &lineErr))
			assert.Equal(t, tt.line, lineErr.Line)
		})
	}
}

func TestParse_UnknownRightDefaultsToPut(t *testing.T) {
	legs, err := Parse("option,buy,straddle,22000,150,2\noption,sell,,22300,80,2\noption,buy,買權,23000,10,1")
	require.NoError(t, err)
	require.Len(t, legs, 3)
	assert.Equal(t, domain.Put, legs[0].CallPut)
	assert.Equal(t, domain.Put, legs[1].CallPut)
	assert.Equal(t, domain.Call, legs[2].CallPut)
}

func TestParse_FieldCountError(t *testing.T) {
	_, err := Parse("option,buy,put")
	assert.True(t, errors.Is(err, ErrFieldCount))
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("類型,方向,Call/Put,履約價,權利金,口數\n\n")
	assert.True(t, errors.Is(err, ErrNoPositions))
}

func TestParseOCRText(t *testing.T) {
	raw := "庫存明細\n" +
		"台指權28550 202512W5P 賣出 28550 52 45.5 2\n" +
		"台指權27900 202512W5c 買進 27900 30 12.5 3\n" +
		"台指權28000 202512W5P 買 10 1\n" +
		"合計 100\n"

	out, err := ParseOCRText(raw)
	require.NoError(t, err)
	assert.Equal(t, Header+"\n"+
		"option,sell,put,28550,45.5,2\n"+
		"option,buy,call,27900,12.5,3\n"+
		"option,buy,put,28000,10,1", out)

	legs, err := Parse(out)
	require.NoError(t, err)
	assert.Len(t, legs, 3)
}

func TestParseOCRText_NoRows(t *testing.T) {
	out, err := ParseOCRText("nothing useful here")
	require.NoError(t, err)
	assert.Equal(t, Header, out)

	_, err = Parse(out)
	assert.True(t, errors.Is(err, ErrNoPositions))
}

func TestParseOCRText_RecognitionError(t *testing.T) {
	_, err := ParseOCRText("ERROR: image unreadable")
	assert.True(t, errors.Is(err, ErrRecognition))
}
