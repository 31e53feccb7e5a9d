package kafka

import (
	"sort"
	"sync"

	"github.com/segmentio/kafka-go"
)

// partitionOffsets прочитанные, но еще не закоммиченные смещения одной партиции
type partitionOffsets struct {
	pending []int64
	done    map[int64]kafka.Message
}

// offsetTracker коммитит смещение партиции только когда все более ранние
// прочитанные сообщения этой партиции сохранены или пропущены
type offsetTracker struct {
	mu         sync.Mutex
	partitions map[int]*partitionOffsets
}

func newOffsetTracker() *offsetTracker {
	return &offsetTracker{partitions: make(map[int]*partitionOffsets)}
}

// track регистрирует прочитанное сообщение. Вызывается в порядке чтения
func (t *offsetTracker) track(msg kafka.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.partitions[msg.Partition]
	if !ok {
		p = &partitionOffsets{done: make(map[int64]kafka.Message)}
		t.partitions[msg.Partition] = p
	}
	p.pending = append(p.pending, msg.Offset)
}

// complete отмечает сообщения обработанными и возвращает по одному сообщению
// на партицию, которое можно закоммитить
func (t *offsetTracker) complete(msgs ...kafka.Message) []kafka.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	touched := make(map[int]struct{})
	for _, msg := range msgs {
		p, ok := t.partitions[msg.Partition]
		if !ok {
			continue
		}
		p.done[msg.Offset] = msg
		touched[msg.Partition] = struct{}{}
	}

	partitions := make([]int, 0, len(touched))
	for partition := range touched {
		partitions = append(partitions, partition)
	}
	sort.Ints(partitions)

	var commits []kafka.Message
	for _, partition := range partitions {
		p := t.partitions[partition]

		var (
			last    kafka.Message
			advance bool
		)
		for len(p.pending) > 0 {
			msg, ok := p.done[p.pending[0]]
			if !ok {
				break
			}
			delete(p.done, p.pending[0])
			p.pending = p.pending[1:]
			last, advance = msg, true
		}
		if advance {
			commits = append(commits, last)
		}
	}
	return commits
}
