package core

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSVSource(t *testing.T) {
	input := "\xEF\xBB\xBF\n" +
		"Name,Amount,,Amount\n" +
		"Ann,$10,x,1\n" +
		",,,\n" +
		"Bob,20\n" +
		"Cy,30,y,2,extra\n"

	src, err := ReadCSVSource("t1", "people", strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"Name", "Amount", "Column 3", "Amount_2"}, src.Columns)
	assert.Equal(t, [][]any{
		{"Ann", "$10", "x", "1"},
		{"Bob", "20", nil, nil},
		{"Cy", "30", "y", "2"},
	}, src.Rows)
	assert.Equal(t, "t1", src.ID)
	assert.False(t, src.CreatedAt.IsZero())
}

func TestReadCSVSource_InvalidUTF8(t *testing.T) {
	src, err := ReadCSVSource("t", "t", bytes.NewReader([]byte("A\nx\xffy\n")))
	require.NoError(t, err)
	assert.Equal(t, "x\uFFFDy", src.Rows[0][0])
}

func TestReadCSVSource_Errors(t *testing.T) {
	_, err := ReadCSVSource("t", "t", strings.NewReader("\n , \n"))
	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "empty file")

	_, err = ReadCSVSource("t", "t", strings.NewReader(""))
	assert.ErrorContains(t, err, "empty file")
}
