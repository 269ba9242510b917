package sluice_test

import "github.com/samber/lo"

func makeIntKeys(n int) []int {
	return lo.Range(n)
}

func drainMax(ch <-chan int) int {
	return lo.Max(lo.ChannelToSlice(ch))
}

func promise(fn func()) <-chan struct{} {
	done := make(chan struct{})
	go func() { defer close(done); fn() }()
	return done
}
