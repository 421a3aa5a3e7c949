package repository

import (
	"context"
	"strconv"
	"testing"
)

const benchKeys = 10_000

func seededTreap(b *testing.B) *TreapStore {
	b.Helper()
	s := NewTreapStore()
	ctx := context.Background()
	for i := 0; i < benchKeys; i++ {
		if _, err := s.Increment(ctx, "A_Coins_O_V2", strconv.Itoa(i), float64(i%997)); err != nil {
			b.Fatal(err)
		}
	}
	return s
}

func BenchmarkTreapIncrement(b *testing.B) {
	s := seededTreap(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.Increment(ctx, "A_Coins_O_V2", strconv.Itoa(i%benchKeys), 1)
	}
}

func BenchmarkTreapIncrementParallel(b *testing.B) {
	s := seededTreap(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = s.Increment(ctx, "A_Coins_O_V2", strconv.Itoa(i%benchKeys), 1)
			i++
		}
	})
}

func BenchmarkTreapTopPage(b *testing.B) {
	s := seededTreap(b)
	ctx := context.Background()
	for _, size := range []int{10, 100} {
		b.Run("top"+strconv.Itoa(size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_, _ = s.TopPage(ctx, "A_Coins_O_V2", true, size)
			}
		})
	}
}
