package main

import (
	"bytes"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shortclaim/internal/dnsproof"
	"shortclaim/internal/model"
	"shortclaim/internal/service"
)

func TestVersionCmd(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, version+"\n", out.String())
}

func TestCheckCmd_Args(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"check"})
	assert.Error(t, root.Execute())
}

func TestPrintCheck(t *testing.T) {
	var out bytes.Buffer
	err := printCheck(&out, &service.CheckResult{
		Name:    "foo.com",
		TXTName: "_ens.foo.com",
		Record:  dnsproof.Record{Found: true, NSEC: true, Address: "0x1111111111111111111111111111111111111111"},
		Claims: []model.ResolvedClaim{
			{Label: "foo", Method: "exact", Cost: big.NewInt(2000000000000000000)},
			{Label: "foocom", Method: "concatenation", Cost: big.NewInt(0), Submitted: true},
		},
	})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[ok] TXT record at _ens.foo.com")
	assert.Contains(t, text, "[ok] proven unsigned")
	lines := strings.Split(strings.TrimSpace(text), "\n")
	assert.Contains(t, lines[len(lines)-2], "foo.eth")
	assert.Contains(t, lines[len(lines)-2], "2")
	assert.Contains(t, lines[len(lines)-1], "submitted")
}
