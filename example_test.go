package sluice_test

import (
	"errors"
	"fmt"
	"strings"

	"github.com/featherbread/sluice"
)

func ExampleQueue() {
	q := sluice.New(2, func(x int) (int, error) {
		return x % 3, nil
	})
	mods, _ := q.Collect(0, 1, 2, 3, 4, 5)
	fmt.Println(mods)
	// Output: [0 1 2 0 1 2]
}

func ExampleQueue_hooks() {
	q := sluice.New(1, func(name string) (string, error) {
		return strings.ToUpper(name), nil
	})
	q.OnBeforeAdmit(func(name string) error {
		if name == "skip" {
			return errors.New("on the blocklist")
		}
		return nil
	})

	fmt.Println(q.Get("ok"))
	_, err := q.Get("skip")
	fmt.Println(err)
	// Output:
	// OK <nil>
	// on the blocklist
}

func ExampleQueue_Invalidate() {
	var runs int
	q := sluice.New(1, func(name string) (int, error) {
		runs++
		return runs, nil
	})

	fmt.Println(q.Get("a"))
	fmt.Println(q.Get("a")) // cached
	q.Invalidate("a")
	fmt.Println(q.Get("a")) // fresh run
	// Output:
	// 1 <nil>
	// 1 <nil>
	// 2 <nil>
}
