package stores

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	codeRecordVersionV1 = 1
	codeRecordSize      = 1 + 1 + 8 + 32
)

var (
	ErrCodeNotFound    = errors.New("one-time code not found")
	ErrCodeExpired     = errors.New("one-time code expired")
	ErrCodeConsumed    = errors.New("one-time code already consumed")
	ErrCodeMismatch    = errors.New("one-time code mismatch")
	ErrCodeUnavailable = errors.New("one-time code store unavailable")
)

// consumeCodeLua atomically validates and marks a code record consumed.
// KEYS[1] = record key
// ARGV[1] = provided hash (32 bytes)
// ARGV[2] = current unix milliseconds
//
// Returns:
//
//	record bytes on success
//	error string: "not_found", "expired", "consumed", "mismatch"
var consumeCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

-- Layout: version(1) consumed(1) expiresAtMs(8 big-endian) hash(32)
if string.byte(data, 1) ~= 1 or #data ~= 42 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local nowMs = tonumber(ARGV[2])
local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 3, 10)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowMs >= expiresAt then
  return {err='expired'}
end

if string.byte(data, 2) ~= 0 then
  return {err='consumed'}
end

if string.sub(data, 11, 42) ~= ARGV[1] then
  return {err='mismatch'}
end

local consumed = string.sub(data, 1, 1) .. string.char(1) .. string.sub(data, 3)
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs > 0 then
  redis.call('SET', KEYS[1], consumed, 'PX', ttlMs)
else
  redis.call('SET', KEYS[1], consumed)
end
return data
`)

// OneTimeCode is the stored form of an issued code. The plaintext code is
// never stored.
type OneTimeCode struct {
	CodeHash  [32]byte
	ExpiresAt int64 // unix milliseconds
	Consumed  bool
}

// OneTimeCodeStore keeps at most one live code per (account, purpose).
type OneTimeCodeStore struct {
	redis  redis.UniversalClient
	prefix string
	grace  time.Duration
}

// NewOneTimeCodeStore creates a store under prefix. Records outlive their
// expiry by grace so a late attempt is reported as expired rather than unknown.
func NewOneTimeCodeStore(redisClient redis.UniversalClient, prefix string, grace time.Duration) *OneTimeCodeStore {
	if prefix == "" {
		prefix = "aoc"
	}
	if grace < 0 {
		grace = 0
	}
	return &OneTimeCodeStore{
		redis:  redisClient,
		prefix: prefix,
		grace:  grace,
	}
}

func (s *OneTimeCodeStore) key(accountID, purpose string) string {
	return s.prefix + ":" + accountID + ":" + purpose
}

// Issue stores codeHash for (accountID, purpose), replacing whatever record
// was there. A replaced unconsumed code can no longer validate.
func (s *OneTimeCodeStore) Issue(
	ctx context.Context,
	accountID, purpose string,
	codeHash [32]byte,
	now time.Time,
	ttl time.Duration,
) (*OneTimeCode, error) {
	if ttl <= 0 {
		return nil, errors.New("one-time code ttl must be > 0")
	}

	record := &OneTimeCode{
		CodeHash:  codeHash,
		ExpiresAt: now.Add(ttl).UnixMilli(),
	}

	encoded, err := encodeOneTimeCode(record)
	if err != nil {
		return nil, err
	}

	if err := s.redis.Set(ctx, s.key(accountID, purpose), encoded, ttl+s.grace).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}

	return record, nil
}

// Consume validates providedHash against the live record and, on a match,
// marks it consumed in the same atomic step. A mismatch leaves the record
// untouched and never extends its expiry.
func (s *OneTimeCodeStore) Consume(
	ctx context.Context,
	accountID, purpose string,
	providedHash [32]byte,
	now time.Time,
) (*OneTimeCode, error) {
	result, err := consumeCodeLua.Run(ctx, s.redis,
		[]string{s.key(accountID, purpose)},
		string(providedHash[:]),
		now.UnixMilli(),
	).Result()
	if err != nil {
		switch err.Error() {
		case "not_found":
			return nil, ErrCodeNotFound
		case "expired":
			return nil, ErrCodeExpired
		case "consumed":
			return nil, ErrCodeConsumed
		case "mismatch":
			return nil, ErrCodeMismatch
		default:
			return nil, fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected lua result type", ErrCodeUnavailable)
	}

	record, err := decodeOneTimeCode([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}

	// Lua string comparison is not constant time.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, ErrCodeMismatch
	}

	record.Consumed = true
	return record, nil
}

// Get returns the stored record without changing it.
func (s *OneTimeCodeStore) Get(ctx context.Context, accountID, purpose string) (*OneTimeCode, error) {
	data, err := s.redis.Get(ctx, s.key(accountID, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}

	record, err := decodeOneTimeCode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	return record, nil
}

// Delete removes the record for (accountID, purpose).
func (s *OneTimeCodeStore) Delete(ctx context.Context, accountID, purpose string) error {
	if err := s.redis.Del(ctx, s.key(accountID, purpose)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeUnavailable, err)
	}
	return nil
}

func encodeOneTimeCode(record *OneTimeCode) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(codeRecordSize)

	buf.WriteByte(codeRecordVersionV1)
	if record.Consumed {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}
	buf.Write(record.CodeHash[:])

	return buf.Bytes(), nil
}

func decodeOneTimeCode(data []byte) (*OneTimeCode, error) {
	if len(data) != codeRecordSize {
		return nil, errors.New("invalid one-time code record size")
	}
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid one-time code record version")
	}

	consumed, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	record := &OneTimeCode{Consumed: consumed != 0}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(reader, record.CodeHash[:]); err != nil {
		return nil, err
	}

	return record, nil
}
