package ordertable

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gatelink/gogate/internal/domain"
)

var log = logrus.WithField("component", "order_table")

// BadgerTable persists the index on disk so cancels still resolve after a
// daemon restart while gateways stayed up. It stores only ownership, never
// order contents.
type BadgerTable struct {
	db *badger.DB
}

// OpenBadgerTable opens (or creates) the index at dir.
func OpenBadgerTable(dir string) (*BadgerTable, error) {
	opts := badger.DefaultOptions(dir).
		WithLogger(nil).
		WithCompactL0OnClose(true)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open order table at %s", dir)
	}
	log.Infof("order table opened: dir=%s", dir)
	return &BadgerTable{db: db}, nil
}

func (t *BadgerTable) Put(orderID, gateway string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(orderID), []byte(gateway))
	})
	return errors.Wrapf(err, "index order %s", orderID)
}

func (t *BadgerTable) Get(orderID string) (string, error) {
	var gw string
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(orderID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			gw = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", errors.Wrapf(domain.ErrOrderNotFound, "order %s", orderID)
	}
	if err != nil {
		return "", errors.Wrapf(err, "lookup order %s", orderID)
	}
	return gw, nil
}

func (t *BadgerTable) Delete(orderID string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(orderID))
	})
	return errors.Wrapf(err, "unindex order %s", orderID)
}

func (t *BadgerTable) Close() error {
	return t.db.Close()
}
