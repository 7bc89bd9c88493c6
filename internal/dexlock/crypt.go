// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package dexlock

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/pkg/errors"
)

// key and iv are the compiled-in AES-256-CBC secret this "DexProtect"
// scheme is built around. This is intentionally weak: per the design
// this mirrors, it is a crackme, not a real access control. Do not
// strengthen this silently — the legacy-plaintext fallback depends on
// decryption failing loudly when a key file isn't actually encrypted
// with this key.
var (
	key = [32]byte{
		0x9a, 0x4f, 0x1c, 0x7e, 0x2b, 0x88, 0x3d, 0x05,
		0x61, 0xf2, 0x4a, 0xcd, 0x0e, 0x77, 0x9b, 0x13,
		0x5c, 0x2f, 0xa8, 0x91, 0x04, 0x6d, 0xe3, 0x58,
		0xb6, 0x29, 0x7a, 0xd4, 0x10, 0x4e, 0x93, 0xc2,
	}
	iv = [16]byte{
		0x11, 0x9e, 0x52, 0x6a, 0xf3, 0x0c, 0x8d, 0x47,
		0x2e, 0x5b, 0x90, 0xa1, 0x6f, 0x38, 0xcc, 0x04,
	}
)

// Encrypt applies the same compiled-in AES-256-CBC/PKCS#7 scheme
// Decrypt reverses. It exists for the keygen developer tool so test
// key files can be produced without a second copy of the secret.
func Encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "dexlock: build AES cipher")
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+pad)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(pad)
	}
	return out
}

// Decrypt reverses the compiled-in AES-256-CBC/PKCS#7 scheme. Callers
// must fall back to treating the input as legacy plaintext on error;
// decryption failure here is an expected, non-fatal outcome.
func Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.Wrap(err, "dexlock: build AES cipher")
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.Errorf("dexlock: ciphertext length %d is not a nonzero multiple of the block size", len(ciphertext))
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv[:]).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("dexlock: empty plaintext after decryption")
	}
	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, errors.Errorf("dexlock: invalid PKCS#7 padding byte %d", pad)
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errors.New("dexlock: invalid PKCS#7 padding")
		}
	}
	return data[:len(data)-pad], nil
}
