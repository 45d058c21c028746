package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ticketRecordVersion1 = 1
)

var (
	ErrTicketNotFound = errors.New("elevated ticket not found")
	ErrTicketExpired  = errors.New("elevated ticket expired")
	ErrTicketBackend  = errors.New("elevated ticket backend unavailable")
)

// revokeAccountTicketsLua deletes every ticket indexed for an account, then
// the index itself.
// KEYS[1] = account index key
// ARGV[1] = ticket key prefix (with trailing separator)
var revokeAccountTicketsLua = redis.NewScript(`
local ids = redis.call('SMEMBERS', KEYS[1])
local removed = 0
for _, id in ipairs(ids) do
  removed = removed + redis.call('DEL', ARGV[1] .. id)
end
redis.call('DEL', KEYS[1])
return removed
`)

// Ticket is the stored form of an elevated-trust ticket.
type Ticket struct {
	AccountID string
	Purpose   string
	IssuedAt  int64 // unix milliseconds
	ExpiresAt int64 // unix milliseconds
}

// TicketStore persists elevated tickets keyed by their random id, plus a
// per-account index used for bulk revocation.
type TicketStore struct {
	redis  redis.UniversalClient
	prefix string
}

func NewTicketStore(redisClient redis.UniversalClient, prefix string) *TicketStore {
	if prefix == "" {
		prefix = "atk"
	}
	return &TicketStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *TicketStore) key(ticketID string) string {
	return s.prefix + ":" + ticketID
}

func (s *TicketStore) indexKey(accountID string) string {
	return s.prefix + "i:" + accountID
}

// Save stores record under ticketID. The Redis TTL matches the ticket expiry.
func (s *TicketStore) Save(ctx context.Context, ticketID string, record *Ticket) error {
	ttl := time.Duration(record.ExpiresAt-record.IssuedAt) * time.Millisecond
	if ttl <= 0 {
		return errors.New("elevated ticket ttl must be > 0")
	}

	encoded, err := encodeTicket(record)
	if err != nil {
		return err
	}

	indexKey := s.indexKey(record.AccountID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(ticketID), encoded, ttl)
		pipe.SAdd(ctx, indexKey, ticketID)
		pipe.Expire(ctx, indexKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTicketBackend, err)
	}
	return nil
}

// Get loads the ticket and rejects it once now has reached its expiry, even if
// Redis has not evicted it yet.
func (s *TicketStore) Get(ctx context.Context, ticketID string, now time.Time) (*Ticket, error) {
	data, err := s.redis.Get(ctx, s.key(ticketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrTicketBackend, err)
	}

	record, err := decodeTicket(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTicketBackend, err)
	}
	if now.UnixMilli() >= record.ExpiresAt {
		_, _ = s.redis.Del(ctx, s.key(ticketID)).Result()
		return nil, ErrTicketExpired
	}
	return record, nil
}

func (s *TicketStore) Delete(ctx context.Context, ticketID string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(ticketID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrTicketBackend, err)
	}
	return n > 0, nil
}

// RevokeAccount deletes every ticket issued to accountID and returns how many
// were still live.
func (s *TicketStore) RevokeAccount(ctx context.Context, accountID string) (int, error) {
	n, err := revokeAccountTicketsLua.Run(ctx, s.redis,
		[]string{s.indexKey(accountID)},
		s.prefix+":",
	).Int()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrTicketBackend, err)
	}
	return n, nil
}

func encodeTicket(record *Ticket) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(ticketRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.AccountID) > 65535 {
		return nil, errors.New("ticket account id too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.AccountID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.AccountID)

	if len(record.Purpose) > 255 {
		return nil, errors.New("ticket purpose too long")
	}
	buf.WriteByte(byte(len(record.Purpose)))
	buf.WriteString(record.Purpose)

	return buf.Bytes(), nil
}

func decodeTicket(data []byte) (*Ticket, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != ticketRecordVersion1 {
		return nil, errors.New("invalid ticket record version")
	}

	record := &Ticket{}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var accountLen uint16
	if err := binary.Read(reader, binary.BigEndian, &accountLen); err != nil {
		return nil, err
	}
	account := make([]byte, accountLen)
	if _, err := io.ReadFull(reader, account); err != nil {
		return nil, err
	}
	record.AccountID = string(account)

	purposeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	purpose := make([]byte, purposeLen)
	if _, err := io.ReadFull(reader, purpose); err != nil {
		return nil, err
	}
	record.Purpose = string(purpose)

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in ticket record")
	}

	return record, nil
}
