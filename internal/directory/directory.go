// Package directory resolves consultant identifiers to display records kept
// in Redis.
package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const consultantKeyPrefix = "consultant:"

// Consultant is the directory record of one consultant.
type Consultant struct {
	ID      string
	Name    string
	Account string
}

// Directory looks consultants up in Redis hashes keyed consultant:<id> with
// the fields name and account.
type Directory struct {
	client *redis.Client
}

func New(client *redis.Client) *Directory {
	return &Directory{client: client}
}

// Lookup returns the consultant stored under id. The boolean is false when
// the directory has no record for id.
func (d *Directory) Lookup(ctx context.Context, id string) (Consultant, bool, error) {
	if id == "" {
		return Consultant{}, false, errors.New("consultant id cannot be empty")
	}
	fields, err := d.client.HGetAll(ctx, consultantKeyPrefix+id).Result()
	if err != nil {
		return Consultant{}, false, fmt.Errorf("failed to look up consultant %s: %w", id, err)
	}
	if len(fields) == 0 {
		return Consultant{}, false, nil
	}
	return Consultant{
		ID:      id,
		Name:    fields["name"],
		Account: fields["account"],
	}, true, nil
}

// Save writes c, replacing any previous record for c.ID.
func (d *Directory) Save(ctx context.Context, c Consultant) error {
	if c.ID == "" {
		return errors.New("consultant id cannot be empty")
	}
	key := consultantKeyPrefix + c.ID
	_, err := d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "name", c.Name, "account", c.Account)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save consultant %s: %w", c.ID, err)
	}
	return nil
}
