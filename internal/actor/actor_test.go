package actor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlayerPermissions(t *testing.T) {
	p := NewPlayer("alice", "shopkeeper.sign")
	assert.True(t, p.HasPermission("shopkeeper.sign"))
	assert.True(t, p.HasPermission(""))
	assert.False(t, p.HasPermission("shopkeeper.admin"))

	p.Grant("shopkeeper.admin")
	assert.True(t, p.HasPermission("shopkeeper.admin"))
	p.Revoke("shopkeeper.admin")
	assert.False(t, p.HasPermission("shopkeeper.admin"))

	assert.True(t, NewOperator("root").HasPermission("anything"))
}

func TestSendMessageReplacesArgsAndSplitsLines(t *testing.T) {
	p := NewPlayer("bob")
	SendMessage(p, "&aCreated {type}\n{desc}", "{type}", "Book", "{desc}", "sells books")
	assert.Equal(t, []string{"§aCreated Book", "sells books"}, p.Messages())
	assert.Equal(t, "sells books", p.LastMessage())

	SendMessage(p, "")
	assert.Len(t, p.Messages(), 2)
	p.ClearMessages()
	assert.Empty(t, p.Messages())
}
