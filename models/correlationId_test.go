package models

import (
	"crypto/sha256"
	"encoding/hex"
	"reflect"
	"strconv"
	"strings"
	"testing"
)

func gormColumnSize(t *testing.T, model interface{}, fieldName string) int {
	t.Helper()
	field, ok := reflect.TypeOf(model).FieldByName(fieldName)
	if !ok {
		t.Fatalf("%T has no field %s", model, fieldName)
	}
	for _, part := range strings.Split(field.Tag.Get("gorm"), ";") {
		if strings.HasPrefix(part, "size:") {
			size, err := strconv.Atoi(strings.TrimPrefix(part, "size:"))
			if err != nil {
				t.Fatalf("%T.%s size tag: %v", model, fieldName, err)
			}
			return size
		}
	}
	t.Fatalf("%T.%s has no size tag", model, fieldName)
	return 0
}

func TestCorrelationIdColumnsFitFileDigest(t *testing.T) {
	// The file ingest uses the sha256 hex digest of the raw content as the
	// correlation id on the file row and on every payment it posts. A column
	// narrower than the digest either rejects the insert or truncates the
	// value so duplicate lookups never match.
	sum := sha256.Sum256([]byte("remit"))
	digestLen := len(hex.EncodeToString(sum[:]))

	cases := []struct {
		name  string
		model interface{}
	}{
		{"RemittanceFile", RemittanceFile{}},
		{"Payment", Payment{}},
		{"PaymentEventRecord", PaymentEventRecord{}},
	}
	for _, c := range cases {
		size := gormColumnSize(t, c.model, "CorrelationId")
		if size < digestLen {
			t.Fatalf("%s.CorrelationId size %d cannot hold a %d-char digest", c.name, size, digestLen)
		}
	}
}
