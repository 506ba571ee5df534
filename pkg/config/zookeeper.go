package config

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zookeeper/zk"
)

// zkProvider reads a single ZooKeeper node and watches it with GetW.
// ZooKeeper watches are one-shot, so the watch loop re-arms after every
// delivered event.
type zkProvider struct {
	conn *zk.Conn
	path string

	done chan struct{}
	once sync.Once
}

func newZkProvider(endpoints []string, path string) (*zkProvider, error) {
	if len(endpoints) == 0 {
		return nil, errors.New("zookeeper endpoints are required")
	}
	if path == "" {
		return nil, errors.New("zookeeper path is required")
	}

	conn, _, err := zk.Connect(endpoints, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to zookeeper: %w", err)
	}

	return &zkProvider{
		conn: conn,
		path: path,
		done: make(chan struct{}),
	}, nil
}

func (p *zkProvider) ReadBytes() ([]byte, error) {
	data, _, err := p.conn.Get(p.path)
	if err != nil {
		return nil, fmt.Errorf("read zookeeper node %s: %w", p.path, err)
	}
	return data, nil
}

func (p *zkProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("zookeeper provider does not support direct reads")
}

func (p *zkProvider) Watch(cb func(event interface{}, err error)) error {
	for {
		select {
		case <-p.done:
			return nil
		default:
		}

		data, _, eventCh, err := p.conn.GetW(p.path)
		if err != nil {
			cb(nil, fmt.Errorf("watch zookeeper node %s: %w", p.path, err))
			select {
			case <-p.done:
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		select {
		case <-p.done:
			return nil
		case event := <-eventCh:
			switch event.Type {
			case zk.EventNodeDataChanged:
				cb(data, nil)
			case zk.EventNodeDeleted:
				cb(nil, fmt.Errorf("zookeeper node %s was deleted", p.path))
				return nil
			case zk.EventNotWatching:
				cb(nil, fmt.Errorf("zookeeper watch lost for node %s", p.path))
				return nil
			}
		}
	}
}

func (p *zkProvider) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
	return nil
}
