package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkJSON(t *testing.T) {
	b, err := json.Marshal(Link{})
	require.NoError(t, err)
	assert.Equal(t, "null", string(b))

	b, err = json.Marshal(LinkTo("abc"))
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(b))

	var l Link
	require.NoError(t, json.Unmarshal([]byte(`"def"`), &l))
	assert.Equal(t, LinkTo("def"), l)
	require.NoError(t, json.Unmarshal([]byte(`null`), &l))
	assert.False(t, l.Valid)
}

func TestLinkSQL(t *testing.T) {
	v, err := Link{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = LinkTo("abc").Value()
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	var l Link
	require.NoError(t, l.Scan([]byte("xyz")))
	assert.Equal(t, LinkTo("xyz"), l)
	require.NoError(t, l.Scan(nil))
	assert.Equal(t, Link{}, l)
	require.Error(t, l.Scan(42))
}

func TestOperationIsValid(t *testing.T) {
	assert.True(t, OperationCreate.IsValid())
	assert.True(t, OperationResolve.IsValid())
	assert.True(t, OperationOrphan.IsValid())
	assert.False(t, Operation("delete").IsValid())
}
