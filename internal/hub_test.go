package internal

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func newTestClient(room *Room) *Client {
	return newClient(room, nil, 0, "", false, nil)
}

func drain(client *Client) []string {
	var out []string
	for {
		select {
		case payload, ok := <-client.send:
			if !ok {
				return out
			}
			out = append(out, string(payload))
		default:
			return out
		}
	}
}

func TestBroadcastDeliversToAllMembersExactlyOnce(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate(42)

	clientA := newTestClient(room)
	clientB := newTestClient(room)
	room.Join(clientA)
	room.Join(clientB)
	// A second Join must not create a second delivery.
	room.Join(clientA)

	if dropped := hub.Broadcast(42, []byte("hello")); dropped != 0 {
		t.Fatalf("expected no drops, got %d", dropped)
	}

	for name, client := range map[string]*Client{"A": clientA, "B": clientB} {
		got := drain(client)
		if len(got) != 1 || got[0] != "hello" {
			t.Fatalf("client %s: expected exactly one delivery, got %v", name, got)
		}
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate(7)

	staying := newTestClient(room)
	leaving := newTestClient(room)
	room.Join(staying)
	room.Join(leaving)

	room.Leave(leaving)
	hub.Broadcast(7, []byte("after"))

	if got := drain(staying); len(got) != 1 {
		t.Fatalf("staying client should still receive, got %v", got)
	}
	select {
	case payload, ok := <-leaving.send:
		if ok {
			t.Fatalf("left client received %q", payload)
		}
	default:
		t.Fatalf("expected closed send channel for left client")
	}
}

func TestLeaveIsIdempotent(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate(1)
	client := newTestClient(room)
	room.Join(client)

	room.Leave(client)
	// Second Leave must not panic on the already-closed channel.
	room.Leave(client)
}

func TestSlowConsumerIsDroppedWithoutBlockingOthers(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate(9)

	slow := newTestClient(room)
	fast := newTestClient(room)
	room.Join(slow)
	room.Join(fast)

	// Fill the slow client's buffer so the next broadcast cannot queue.
	for i := 0; i < sendBuffer; i++ {
		slow.send <- []byte("fill")
	}

	done := make(chan int, 1)
	go func() {
		done <- room.Broadcast([]byte("overflow"))
	}()
	select {
	case dropped := <-done:
		if dropped != 1 {
			t.Fatalf("expected 1 dropped client, got %d", dropped)
		}
	case <-time.After(time.Second):
		t.Fatalf("broadcast blocked on a slow consumer")
	}

	got := drain(fast)
	if len(got) != 1 || got[0] != "overflow" {
		t.Fatalf("fast client should still receive, got %v", got)
	}
	if room.size() != 1 {
		t.Fatalf("expected slow client removed from room, size=%d", room.size())
	}

	// A later broadcast must not touch the dropped client again.
	room.Broadcast([]byte("later"))
}

func TestSendToSkipsNonMembers(t *testing.T) {
	hub := NewHub()
	room := hub.GetOrCreate(3)
	member := newTestClient(room)
	stranger := newTestClient(room)
	room.Join(member)

	room.SendTo(member, []byte("direct"))
	room.SendTo(stranger, []byte("direct"))

	if got := drain(member); len(got) != 1 {
		t.Fatalf("member should receive direct send, got %v", got)
	}
	if got := drain(stranger); len(got) != 0 {
		t.Fatalf("non-member must not receive, got %v", got)
	}
}

func TestHubRoomLifecycle(t *testing.T) {
	hub := NewHub()
	if hub.Exists(5) {
		t.Fatalf("room should not exist before first connection")
	}
	room := hub.GetOrCreate(5)
	if !hub.Exists(5) {
		t.Fatalf("room should exist after GetOrCreate")
	}
	if hub.GetOrCreate(5) != room {
		t.Fatalf("GetOrCreate must return the same room")
	}

	client := newTestClient(room)
	room.Join(client)
	hub.RemoveIfEmpty(5)
	if !hub.Exists(5) {
		t.Fatalf("occupied room must not be pruned")
	}

	room.Leave(client)
	hub.RemoveIfEmpty(5)
	if hub.Exists(5) {
		t.Fatalf("empty room should be pruned")
	}
}

func TestBroadcastToUnknownForumIsNoop(t *testing.T) {
	hub := NewHub()
	if dropped := hub.Broadcast(404, []byte("nobody")); dropped != 0 {
		t.Fatalf("expected 0 drops for unknown forum, got %d", dropped)
	}
}

func TestDisjointRoomsDoNotInterfere(t *testing.T) {
	hub := NewHub()
	const rooms = 8
	const messages = 50

	clients := make([]*Client, rooms)
	for i := 0; i < rooms; i++ {
		room := hub.GetOrCreate(int64(i))
		clients[i] = newTestClient(room)
		room.Join(clients[i])
	}

	var wg sync.WaitGroup
	for i := 0; i < rooms; i++ {
		wg.Add(1)
		go func(forumID int64) {
			defer wg.Done()
			for n := 0; n < messages; n++ {
				hub.Broadcast(forumID, []byte(fmt.Sprintf("%d:%d", forumID, n)))
			}
		}(int64(i))
	}

	received := make([][]string, rooms)
	var readWg sync.WaitGroup
	for i := 0; i < rooms; i++ {
		readWg.Add(1)
		go func(idx int) {
			defer readWg.Done()
			for n := 0; n < messages; n++ {
				received[idx] = append(received[idx], string(<-clients[idx].send))
			}
		}(i)
	}
	wg.Wait()
	readWg.Wait()

	for i := 0; i < rooms; i++ {
		if len(received[i]) != messages {
			t.Fatalf("room %d: expected %d messages, got %d", i, messages, len(received[i]))
		}
		prefix := fmt.Sprintf("%d:", i)
		for _, payload := range received[i] {
			if payload[:len(prefix)] != prefix {
				t.Fatalf("room %d received foreign payload %q", i, payload)
			}
		}
	}
}
