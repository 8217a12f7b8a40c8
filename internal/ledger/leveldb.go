package ledger

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/rickgao/papertrade/internal/model"
)

// account		key: a\x00{user}					value: json model.Account
// holding		key: h\x00{user}\x00{symbol}		value: json model.Holding
// transaction	key: t\x00{user}\x00{seq uint64 BE}	value: json model.Transaction
// sequence		key: s\x00{user}					value: uint64 BE, last used seq

const sep = 0x00

// LevelStore is a Store on an embedded LevelDB. Each Update runs inside a
// LevelDB transaction, which also serializes concurrent writers.
type LevelStore struct {
	db     *leveldb.DB
	logger *slog.Logger
}

// OpenLevelStore opens (or creates) the database directory at path.
func OpenLevelStore(path string, logger *slog.Logger) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return NewLevelStore(db, logger), nil
}

// NewLevelStore wraps an already opened database.
func NewLevelStore(db *leveldb.DB, logger *slog.Logger) *LevelStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LevelStore{db: db, logger: logger}
}

// Update runs fn in a LevelDB transaction and commits it when fn succeeds.
func (s *LevelStore) Update(ctx context.Context, userID string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	trans, err := s.db.OpenTransaction()
	if err != nil {
		return &CommitError{Op: "begin", Err: err}
	}
	defer trans.Discard()

	if err := fn(&levelTx{levelReader{trans}, trans}); err != nil {
		return err
	}

	if err := trans.Commit(); err != nil {
		s.logger.Error("commit leveldb transaction failed", "user_id", userID, "error", err)
		return &CommitError{Op: "commit", Err: err}
	}
	return nil
}

// View runs fn against a snapshot.
func (s *LevelStore) View(ctx context.Context, fn func(r Reader) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	snap, err := s.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("leveldb snapshot: %w", err)
	}
	defer snap.Release()

	return fn(levelReader{snap})
}

// Ping checks that the database is open.
func (s *LevelStore) Ping(context.Context) error {
	_, err := s.db.GetProperty("leveldb.num-files-at-level0")
	return err
}

// Close closes the database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// kv is satisfied by both *leveldb.Transaction and *leveldb.Snapshot.
type kv interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type levelReader struct {
	kv kv
}

func (r levelReader) Account(_ context.Context, userID string) (model.Account, error) {
	var a model.Account
	ok, err := r.get(levelAccountKey(userID), &a)
	if err != nil {
		return model.Account{}, err
	}
	if !ok {
		return model.Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r levelReader) Holding(_ context.Context, userID, symbol string) (model.Holding, bool, error) {
	var h model.Holding
	ok, err := r.get(levelHoldingKey(userID, symbol), &h)
	return h, ok, err
}

func (r levelReader) Holdings(_ context.Context, userID string) ([]model.Holding, error) {
	iter := r.kv.NewIterator(util.BytesPrefix(levelHoldingPrefix(userID)), nil)
	defer iter.Release()

	var out []model.Holding
	for iter.Next() {
		var h model.Holding
		if err := json.Unmarshal(iter.Value(), &h); err != nil {
			return nil, fmt.Errorf("decode holding %q: %w", iter.Key(), err)
		}
		out = append(out, h)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r levelReader) Transactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	iter := r.kv.NewIterator(util.BytesPrefix(levelTxPrefix(userID)), nil)
	defer iter.Release()

	var out []model.Transaction
	for ok := iter.Last(); ok; ok = iter.Prev() {
		var t model.Transaction
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("decode transaction %q: %w", iter.Key(), err)
		}
		out = append(out, t)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

// get decodes the JSON value at key into v. ok is false when the key is absent.
func (r levelReader) get(k []byte, v any) (ok bool, err error) {
	data, err := r.kv.Get(k, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %q: %w", k, err)
	}
	return true, nil
}

type levelTx struct {
	levelReader
	trans *leveldb.Transaction
}

func (tx *levelTx) CreateAccount(ctx context.Context, a model.Account) error {
	if _, err := tx.Account(ctx, a.UserID); err == nil {
		return ErrAccountExists
	} else if !errors.Is(err, ErrAccountNotFound) {
		return err
	}
	return tx.put(levelAccountKey(a.UserID), a)
}

func (tx *levelTx) PutAccount(ctx context.Context, a model.Account) error {
	if _, err := tx.Account(ctx, a.UserID); err != nil {
		return err
	}
	return tx.put(levelAccountKey(a.UserID), a)
}

func (tx *levelTx) PutHolding(_ context.Context, h model.Holding) error {
	if err := ValidateHolding(h); err != nil {
		return err
	}
	return tx.put(levelHoldingKey(h.UserID, h.Symbol), h)
}

func (tx *levelTx) DeleteHolding(_ context.Context, userID, symbol string) error {
	return tx.trans.Delete(levelHoldingKey(userID, symbol), nil)
}

func (tx *levelTx) AppendTransaction(_ context.Context, t model.Transaction) error {
	sk := levelSeqKey(t.UserID)

	var seq uint64
	data, err := tx.trans.Get(sk, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
	case err != nil:
		return err
	default:
		seq = binary.BigEndian.Uint64(data)
	}
	seq++

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	if err := tx.trans.Put(sk, buf[:], nil); err != nil {
		return err
	}
	return tx.put(levelTxKey(t.UserID, seq), t)
}

func (tx *levelTx) put(k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", k, err)
	}
	return tx.trans.Put(k, data, nil)
}

func joinKey(parts ...[]byte) []byte {
	return bytes.Join(parts, []byte{sep})
}

func levelAccountKey(userID string) []byte {
	return joinKey([]byte("a"), []byte(userID))
}

func levelHoldingPrefix(userID string) []byte {
	return append(joinKey([]byte("h"), []byte(userID)), sep)
}

func levelHoldingKey(userID, symbol string) []byte {
	return append(levelHoldingPrefix(userID), symbol...)
}

func levelTxPrefix(userID string) []byte {
	return append(joinKey([]byte("t"), []byte(userID)), sep)
}

func levelTxKey(userID string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(levelTxPrefix(userID), seq)
}

func levelSeqKey(userID string) []byte {
	return joinKey([]byte("s"), []byte(userID))
}
