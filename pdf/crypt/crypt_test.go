package crypt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/georgepadayatti/pdfstream/pdf/filters"
	"github.com/georgepadayatti/pdfstream/pdf/generic"
)

func testKey(n int) []byte {
	key := make([]byte, n)
	for i := range key {
		key[i] = byte(i*7 + 1)
	}
	return key
}

func encryptDict(v int, cfm string) *generic.DictionaryObject {
	d := generic.NewDictionary()
	d.Set("Filter", generic.NameObject("Standard"))
	d.Set("V", generic.IntegerObject(v))
	if cfm != "" {
		stdCF := generic.NewDictionary()
		stdCF.Set("CFM", generic.NameObject(cfm))
		cf := generic.NewDictionary()
		cf.Set("StdCF", stdCF)
		d.Set("CF", cf)
		d.Set("StmF", generic.NameObject("StdCF"))
		d.Set("StrF", generic.NameObject("StdCF"))
	}
	return d
}

func TestNewCipherFactoryFromDict(t *testing.T) {
	tests := []struct {
		name       string
		dict       *generic.DictionaryObject
		keyLen     int
		wantStream CryptFilterType
	}{
		{"rc4 v1", encryptDict(1, ""), 5, CryptFilterV2},
		{"rc4 v2", encryptDict(2, ""), 16, CryptFilterV2},
		{"crypt filter v2", encryptDict(4, "V2"), 16, CryptFilterV2},
		{"aes 128", encryptDict(4, "AESV2"), 16, CryptFilterAESV2},
		{"aes 256", encryptDict(5, "AESV3"), 32, CryptFilterAESV3},
		{"crypt filter none", encryptDict(4, "None"), 16, CryptFilterIdentity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewCipherFactoryFromDict(tt.dict, testKey(tt.keyLen))
			if err != nil {
				t.Fatalf("NewCipherFactoryFromDict failed: %v", err)
			}
			if f.streamType != tt.wantStream || f.stringType != tt.wantStream {
				t.Errorf("methods = %s/%s, want %s", f.stringType, f.streamType, tt.wantStream)
			}
		})
	}

	identity := encryptDict(4, "AESV2")
	identity.Set("StmF", generic.NameObject("Identity"))
	f, err := NewCipherFactoryFromDict(identity, testKey(16))
	if err != nil {
		t.Fatal(err)
	}
	if f.streamType != CryptFilterIdentity || f.stringType != CryptFilterAESV2 {
		t.Errorf("methods = %s/%s", f.stringType, f.streamType)
	}
}

func TestNewCipherFactoryFromDictErrors(t *testing.T) {
	pubSec := encryptDict(2, "")
	pubSec.Set("Filter", generic.NameObject("Adobe.PubSec"))
	undefined := encryptDict(4, "AESV2")
	undefined.Set("StmF", generic.NameObject("Missing"))

	tests := []struct {
		name    string
		dict    *generic.DictionaryObject
		keyLen  int
		wantErr error
	}{
		{"nil", nil, 16, ErrUnsupportedCrypt},
		{"public key handler", pubSec, 16, ErrUnsupportedCrypt},
		{"version 3", encryptDict(3, ""), 16, ErrUnsupportedCrypt},
		{"undefined crypt filter", undefined, 16, ErrUnsupportedCrypt},
		{"unknown method", encryptDict(4, "ChaCha"), 16, ErrUnsupportedCrypt},
		{"short aes key", encryptDict(4, "AESV2"), 5, ErrInvalidKeyLength},
		{"long rc4 key", encryptDict(2, ""), 32, ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCipherFactoryFromDict(tt.dict, testKey(tt.keyLen)); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestCipherTransformRoundTrip(t *testing.T) {
	methods := map[CryptFilterType]int{
		CryptFilterV2:       16,
		CryptFilterAESV2:    16,
		CryptFilterAESV3:    32,
		CryptFilterIdentity: 0,
	}
	plaintext := []byte("(Secret) text \\ with escapes")

	for method, keyLen := range methods {
		t.Run(string(method), func(t *testing.T) {
			f, err := NewCipherFactory(testKey(keyLen), method)
			if err != nil {
				t.Fatal(err)
			}
			tr := f.CreateCipherTransform(12, 0)

			enc, err := tr.EncryptString(plaintext)
			if err != nil {
				t.Fatal(err)
			}
			if method != CryptFilterIdentity && bytes.Equal(enc, plaintext) {
				t.Error("string was not encrypted")
			}
			dec, err := f.CreateCipherTransform(12, 0).DecryptString(enc)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(dec, plaintext) {
				t.Errorf("DecryptString = %q", dec)
			}

			if method == CryptFilterV2 || method == CryptFilterAESV2 {
				other, _ := f.CreateCipherTransform(13, 0).DecryptString(enc)
				if bytes.Equal(other, plaintext) {
					t.Error("objects 12 and 13 share a key")
				}
			}
		})
	}
}

func TestCipherTransformDeterministicIV(t *testing.T) {
	f, err := NewCipherFactory(testKey(16), CryptFilterAESV2)
	if err != nil {
		t.Fatal(err)
	}
	iv := bytes.Repeat([]byte{0x42}, 16)
	f.SetRand(bytes.NewReader(iv))
	enc, err := f.CreateCipherTransform(1, 0).EncryptStream([]byte("data"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc[:16], iv) || len(enc) != 32 {
		t.Errorf("encrypted = %x", enc)
	}

	// The reader is exhausted now.
	if _, err := f.CreateCipherTransform(1, 0).EncryptStream([]byte("data")); err == nil {
		t.Error("expected an error when no IV can be read")
	}
}

func TestDecryptSourceMatchesWholeBuffer(t *testing.T) {
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i * 31)
	}

	for _, method := range []CryptFilterType{CryptFilterV2, CryptFilterAESV2, CryptFilterAESV3} {
		for _, size := range []int{0, 1, 15, 16, 495, 496, 512, 1100, len(data)} {
			keyLen := 16
			if method == CryptFilterAESV3 {
				keyLen = 32
			}
			f, err := NewCipherFactory(testKey(keyLen), method)
			if err != nil {
				t.Fatal(err)
			}
			enc, err := f.CreateCipherTransform(7, 2).EncryptStream(data[:size])
			if err != nil {
				t.Fatal(err)
			}

			s, err := f.CreateCipherTransform(7, 2).DecryptSource(filters.NewStream(enc, nil), len(enc))
			if err != nil {
				t.Fatal(err)
			}
			got, err := filters.ReadAll(s, 0)
			if err != nil {
				t.Fatalf("%s size %d: %v", method, size, err)
			}
			if !bytes.Equal(got, data[:size]) {
				t.Errorf("%s size %d: chunked decryption mismatch", method, size)
			}
		}
	}
}

func TestAESChunkDecryptorErrors(t *testing.T) {
	f, err := NewCipherFactory(testKey(16), CryptFilterAESV2)
	if err != nil {
		t.Fatal(err)
	}
	tr := f.CreateCipherTransform(1, 0)

	for _, enc := range [][]byte{make([]byte, 10), make([]byte, 40)} {
		decrypt, err := tr.NewDecryptor()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := decrypt(enc, true); err == nil {
			t.Errorf("expected an error for %d bytes", len(enc))
		}
	}
}
