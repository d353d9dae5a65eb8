package aggregator

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Secrets 是一次订单的哈希锁原像。原像只在成交时披露，绝不写入日志或回复。
type Secrets struct {
	values [][32]byte
	hashes []common.Hash
}

// MaxSecrets 是单笔订单允许的分段成交原像数量上限。
const MaxSecrets = 64

// NewSecrets 生成 n 个随机原像及其 keccak256 哈希。
func NewSecrets(n int) (*Secrets, error) {
	if n <= 0 {
		return nil, errors.New("secrets count must be positive")
	}
	if n > MaxSecrets {
		return nil, fmt.Errorf("secrets count %d exceeds %d", n, MaxSecrets)
	}
	s := &Secrets{values: make([][32]byte, n), hashes: make([]common.Hash, n)}
	for i := range s.values {
		if _, err := rand.Read(s.values[i][:]); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		s.hashes[i] = crypto.Keccak256Hash(s.values[i][:])
	}
	return s, nil
}

// Len 返回原像数量。
func (s *Secrets) Len() int {
	return len(s.hashes)
}

// Hashes 返回全部原像哈希。
func (s *Secrets) Hashes() []common.Hash {
	return append([]common.Hash(nil), s.hashes...)
}

// HashLock 单次成交时直接使用唯一原像的哈希；多次成交时为叶子 keccak256(index ‖ hash) 的默克尔根。
func (s *Secrets) HashLock() common.Hash {
	if len(s.hashes) == 1 {
		return s.hashes[0]
	}
	return MerkleRoot(s.hashes)
}

// String 不输出原像。
func (s *Secrets) String() string {
	return fmt.Sprintf("Secrets(%d)", len(s.hashes))
}

// MerkleRoot 计算多次成交订单的组合哈希锁，叶子顺序即成交序号。
func MerkleRoot(hashes []common.Hash) common.Hash {
	if len(hashes) == 0 {
		return common.Hash{}
	}
	level := make([]common.Hash, len(hashes))
	for i, h := range hashes {
		var index [8]byte
		binary.BigEndian.PutUint64(index[:], uint64(i))
		level[i] = crypto.Keccak256Hash(index[:], h.Bytes())
	}
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, hashPair(level[i], level[i+1]))
		}
		level = next
	}
	return level[0]
}

func hashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a.Bytes(), b.Bytes())
}

// OrderDigest 是创建者对订单的签名摘要。
func OrderDigest(quoteID string, maker common.Address, hashLock common.Hash) common.Hash {
	return crypto.Keccak256Hash([]byte(quoteID), maker.Bytes(), hashLock.Bytes())
}
