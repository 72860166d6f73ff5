package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"errors"
)

var (
	ErrInvalidBlockSize = errors.New("data not multiple of block size")
	ErrInvalidKeyLength = errors.New("invalid key length")
)

// ObjectKey computes the RC4 or AESV2 key of object num gen: MD5 of the
// file key, three bytes of num and two of gen (low byte first), plus "sAlT"
// for AES. The result has len(fileKey)+5 bytes, at most 16.
func ObjectKey(fileKey []byte, num, gen int, forAES bool) []byte {
	buf := make([]byte, 0, len(fileKey)+9)
	buf = append(buf, fileKey...)
	buf = append(buf, byte(num), byte(num>>8), byte(num>>16), byte(gen), byte(gen>>8))
	if forAES {
		buf = append(buf, "sAlT"...)
	}
	sum := md5.Sum(buf)
	return sum[:min(len(fileKey)+5, md5.Size)]
}

// rc4XOR applies the RC4 keystream of key to data. It both encrypts and
// decrypts.
func rc4XOR(key, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// sealCBC pads data and encrypts it with AES-CBC. The result starts with iv.
func sealCBC(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	n := len(data)/aes.BlockSize*aes.BlockSize + aes.BlockSize
	out := make([]byte, aes.BlockSize+n)
	copy(out, iv)
	body := out[aes.BlockSize:]
	copy(body, data)
	for i := len(data); i < n; i++ {
		body[i] = byte(n - len(data))
	}
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(body, body)
	return out, nil
}

// openCBC decrypts AES-CBC data whose first block is the IV and strips the
// padding.
func openCBC(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize {
		return nil, ErrDecryptionFailed
	}
	if len(data)%aes.BlockSize != 0 {
		return nil, ErrInvalidBlockSize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data)-aes.BlockSize)
	cipher.NewCBCDecrypter(block, data[:aes.BlockSize]).CryptBlocks(out, data[aes.BlockSize:])
	return unpad(out), nil
}

// unpad removes PKCS#7 padding. Data that is not validly padded is
// returned as is.
func unpad(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return data
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return data
		}
	}
	return data[:len(data)-n]
}
