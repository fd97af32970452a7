package domain

// queue.go: colas de entrada a carrera.
//
// Main es un log append-only con un head que avanza: FIFO con dequeue O(1)
// amortizado (se compacta cuando el head supera la mitad del log).
// Priority es una pila: las entradas restauradas tras una cancelación salen
// antes que las de main, la más reciente primero.

import (
	"github.com/ethereum/go-ethereum/common"
)

// QueueEntry es un competidor esperando carril.
type QueueEntry struct {
	Seq        uint64         `json:"seq"`
	Competitor uint64         `json:"competitor"`
	Owner      common.Address `json:"owner"`
}

// Queues agrupa la cola principal y la de prioridad.
type Queues struct {
	Main     []QueueEntry `json:"main"`
	Head     int          `json:"head"`
	Priority []QueueEntry `json:"priority"`
	NextSeq  uint64       `json:"next_seq"`
}

// Len es el número de entradas vivas en ambas colas.
func (q *Queues) Len() int {
	return len(q.Main) - q.Head + len(q.Priority)
}

// Live devuelve las entradas en orden de selección: prioridad (de la más
// reciente a la más antigua) y luego main en FIFO.
func (q *Queues) Live() []QueueEntry {
	out := make([]QueueEntry, 0, q.Len())
	for i := len(q.Priority) - 1; i >= 0; i-- {
		out = append(out, q.Priority[i])
	}
	return append(out, q.Main[q.Head:]...)
}

// Position devuelve la posición 1-based del owner, o 0 si no está en cola.
func (q *Queues) Position(owner common.Address) int {
	for i, e := range q.Live() {
		if e.Owner == owner {
			return i + 1
		}
	}
	return 0
}

// conflict indica si el owner o el competidor ya tienen una entrada viva.
func (q *Queues) conflict(competitor uint64, owner common.Address) bool {
	for _, e := range q.Live() {
		if e.Owner == owner || e.Competitor == competitor {
			return true
		}
	}
	return false
}

// Enqueue añade una entrada al final de main. capacity ≤ 0 es sin límite.
func (q *Queues) Enqueue(competitor uint64, owner common.Address, capacity int) (QueueEntry, error) {
	if q.conflict(competitor, owner) {
		return QueueEntry{}, ErrAlreadyQueued
	}
	if capacity > 0 && q.Len() >= capacity {
		return QueueEntry{}, ErrQueueFull
	}
	q.NextSeq++
	e := QueueEntry{Seq: q.NextSeq, Competitor: competitor, Owner: owner}
	q.Main = append(q.Main, e)
	return e, nil
}

// Restore apila entradas en prioridad, en orden inverso para que la primera
// del slice sea la primera en salir. Las que ya tienen entrada viva se
// descartan. Devuelve las restauradas.
func (q *Queues) Restore(entries []QueueEntry) []QueueEntry {
	var restored []QueueEntry
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if q.conflict(e.Competitor, e.Owner) {
			continue
		}
		q.Priority = append(q.Priority, e)
		restored = append(restored, e)
	}
	return restored
}

// Pop saca la siguiente entrada: tope de prioridad, o el head de main.
func (q *Queues) Pop() (QueueEntry, bool) {
	if n := len(q.Priority); n > 0 {
		e := q.Priority[n-1]
		q.Priority = q.Priority[:n-1]
		return e, true
	}
	if q.Head >= len(q.Main) {
		return QueueEntry{}, false
	}
	e := q.Main[q.Head]
	q.Head++
	q.compact()
	return e, true
}

func (q *Queues) compact() {
	if q.Head == len(q.Main) {
		q.Main = q.Main[:0]
		q.Head = 0
		return
	}
	if q.Head > 32 && q.Head*2 > len(q.Main) {
		q.Main = append([]QueueEntry(nil), q.Main[q.Head:]...)
		q.Head = 0
	}
}

// Clone devuelve una copia profunda.
func (q Queues) Clone() Queues {
	q.Main = append([]QueueEntry(nil), q.Main...)
	q.Priority = append([]QueueEntry(nil), q.Priority...)
	return q
}
