package pool

import (
	"strconv"
	"testing"
	"time"
)

func BenchmarkPoolLeaseCycle(b *testing.B) {
	p := New(&Config{MaxSize: 1000, MaxAge: time.Hour, MaxIdle: time.Hour})
	defer p.Close()
	if err := p.Put("tcp://bench", &fakeConn{}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		lease := p.Get("tcp://bench")
		if lease == nil {
			b.Fatal("no idle connection")
		}
		lease.Close()
	}
}

func BenchmarkPoolParallelKeys(b *testing.B) {
	p := New(&Config{MaxSize: 64, MaxAge: time.Hour, MaxIdle: time.Hour})
	defer p.Close()
	keys := make([]string, 32)
	for i := range keys {
		keys[i] = "tcp://peer" + strconv.Itoa(i)
		if err := p.Put(keys[i], &fakeConn{}); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if lease := p.Get(keys[i%len(keys)]); lease != nil {
				lease.Close()
			}
			i++
		}
	})
}
