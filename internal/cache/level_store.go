package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB 键布局：
//
//	p:<partition>            分区标记，首次写入时创建
//	e:<partition>\x00<path>  gob 编码的响应快照
//
// \x00 分隔符保证前缀迭代不会串到别的分区。
const (
	partitionPrefix = "p:"
	entryPrefix     = "e:"
	keySeparator    = "\x00"
)

// newLevelStore 在 basePath/leveldb 下打开（或创建）LevelDB 实例。
func newLevelStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}
	db, err := leveldb.OpenFile(filepath.Join(abs, "leveldb"), nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &levelStore{db: db}, nil
}

type levelStore struct {
	db *leveldb.DB
}

// levelEnvelope 是 gob 编码的落盘结构，与 fs 后端的 body+meta 等价。
type levelEnvelope struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

func (s *levelStore) Get(ctx context.Context, locator Locator) (*ReadResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	key, err := entryKey(locator)
	if err != nil {
		return nil, err
	}
	raw, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var env levelEnvelope
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode cache envelope: %w", err)
	}

	entry := Entry{
		Locator:   locator,
		SizeBytes: int64(len(env.Body)),
		StoredAt:  env.StoredAt,
	}
	return &ReadResult{
		Entry: entry,
		Response: Response{
			Status:   env.Status,
			Header:   env.Header,
			Body:     env.Body,
			StoredAt: env.StoredAt,
		},
	}, nil
}

func (s *levelStore) Put(ctx context.Context, locator Locator, resp Response) (*Entry, error) {
	if resp.Status != http.StatusOK {
		return nil, ErrNotCacheable
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	key, err := entryKey(locator)
	if err != nil {
		return nil, err
	}

	snapshot := resp.clone()
	if snapshot.StoredAt.IsZero() {
		snapshot.StoredAt = time.Now().UTC()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(levelEnvelope{
		Status:   snapshot.Status,
		Header:   snapshot.Header,
		Body:     snapshot.Body,
		StoredAt: snapshot.StoredAt,
	}); err != nil {
		return nil, err
	}

	batch := new(leveldb.Batch)
	batch.Put(key, buf.Bytes())
	batch.Put([]byte(partitionPrefix+locator.Partition), nil)
	if err := s.db.Write(batch, nil); err != nil {
		return nil, err
	}

	entry := Entry{
		Locator:   locator,
		SizeBytes: int64(len(snapshot.Body)),
		StoredAt:  snapshot.StoredAt,
	}
	return &entry, nil
}

func (s *levelStore) Remove(ctx context.Context, locator Locator) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	key, err := entryKey(locator)
	if err != nil {
		return err
	}
	return s.db.Delete(key, nil)
}

func (s *levelStore) Partitions(ctx context.Context) ([]string, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(partitionPrefix)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, strings.TrimPrefix(string(it.Key()), partitionPrefix))
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return names, nil
}

func (s *levelStore) DropPartition(ctx context.Context, name string) error {
	if err := validatePartitionName(name); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(entryPrefix+name+keySeparator)), nil)
	batch := new(leveldb.Batch)
	for it.Next() {
		batch.Delete(append([]byte(nil), it.Key()...))
	}
	err := it.Error()
	it.Release()
	if err != nil {
		return err
	}

	batch.Delete([]byte(partitionPrefix + name))
	return s.db.Write(batch, nil)
}

func (s *levelStore) Close() error {
	return s.db.Close()
}

func entryKey(locator Locator) ([]byte, error) {
	if err := validatePartitionName(locator.Partition); err != nil {
		return nil, err
	}
	clean := path.Clean("/" + locator.Path)
	return []byte(entryPrefix + locator.Partition + keySeparator + clean), nil
}
