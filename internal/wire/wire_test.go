package wire

import (
	"bytes"
	"math"
	"testing"
	"time"
)

func mustDecode(t *testing.T, b []byte) (int64, []byte) {
	t.Helper()
	exp, p, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	return exp, p
}

func TestEntryRTEmptyAndNonEmpty(t *testing.T) {
	cases := []struct {
		exp     int64
		payload []byte
	}{
		{0, nil},
		{42, []byte("hello")},
		{math.MaxInt64, []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		exp, p := mustDecode(t, EncodeEntry(tc.exp, tc.payload))
		if exp != tc.exp {
			t.Fatalf("expiresAt mismatch: got %d want %d", exp, tc.exp)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestEntryRejectsTrailingBytes(t *testing.T) {
	enc := EncodeEntry(7, []byte("x"))
	enc = append(enc, 0xDE, 0xAD) // add junk
	if _, _, err := DecodeEntry(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestEntryCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeEntry(1, []byte("abc"))

	// bad magic
	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, err := DecodeEntry(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	// wrong version
	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	// truncated payload
	if _, _, err := DecodeEntry(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated payload")
	}

	// short header
	if _, _, err := DecodeEntry(enc[:hdrLen-1]); err == nil {
		t.Fatalf("expected error on short header")
	}
}

func TestDeadlineAndExpired(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)

	if d := Deadline(now, 0); d != 0 {
		t.Fatalf("zero ttl should never expire, got %d", d)
	}
	if d := Deadline(now, -time.Second); d != 0 {
		t.Fatalf("negative ttl should never expire, got %d", d)
	}

	d := Deadline(now, time.Minute)
	if Expired(d, now) {
		t.Fatalf("entry expired too early")
	}
	if !Expired(d, now.Add(time.Minute)) {
		t.Fatalf("entry should be expired at its deadline")
	}
	if Expired(0, now.Add(100*365*24*time.Hour)) {
		t.Fatalf("0 header must never expire")
	}
}

func TestRetouchKeepsPayload(t *testing.T) {
	enc := EncodeEntry(5, []byte("body"))
	if err := Retouch(enc, 99); err != nil {
		t.Fatalf("Retouch: %v", err)
	}
	exp, p := mustDecode(t, enc)
	if exp != 99 || string(p) != "body" {
		t.Fatalf("got exp=%d payload=%q", exp, p)
	}
	if err := Retouch([]byte("nope"), 1); err == nil {
		t.Fatalf("Retouch should reject non-entries")
	}
}
