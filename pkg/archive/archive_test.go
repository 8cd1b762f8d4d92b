package archive

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	data := []byte("<OFX>")

	key := ObjectKey("raw", "acme", KindStatement, "extrato março.ofx", data)
	assert.True(t, strings.HasPrefix(key, "raw/acme/statements/"), key)
	assert.True(t, strings.HasSuffix(key, "-extrato_março.ofx"), key)

	hash := strings.TrimPrefix(key, "raw/acme/statements/")[:16]
	assert.Len(t, hash, 16)

	assert.Equal(t, key, ObjectKey("raw", "acme", KindStatement, "extrato março.ofx", data), "same content, same key")
	assert.NotEqual(t, key, ObjectKey("raw", "acme", KindStatement, "extrato março.ofx", []byte("other")))
}

func TestObjectKeyWithoutPrefix(t *testing.T) {
	key := ObjectKey("", "acme", KindInvoice, "../../etc/nota.xml", nil)
	assert.True(t, strings.HasPrefix(key, "acme/invoices/"), key)
	assert.True(t, strings.HasSuffix(key, "-nota.xml"), key)
}

func TestNop(t *testing.T) {
	uri, err := Nop{}.Put(context.Background(), "acme", KindInvoice, "nota.xml", []byte("x"))
	assert.NoError(t, err)
	assert.Empty(t, uri)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/xml", contentType("NOTA.XML"))
	assert.Equal(t, "application/vnd.ms-excel", contentType("extrato.xls"))
	assert.Equal(t, "application/octet-stream", contentType("blob"))
}
