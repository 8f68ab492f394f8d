package repository_test

import (
	"fmt"
	"os"

	"zugferd/internal/platform"
	"zugferd/internal/repository"
	"zugferd/pkg/models"
)

func ExampleRepository_All() {
	dir, err := os.MkdirTemp("", "zugferd-example")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	senders := repository.OpenSenders(platform.Static(dir))
	for _, name := range []string{"Bravo", "Alpha", "Charlie"} {
		senders.Put(models.NewTradeParty(name))
	}

	for _, p := range senders.All() {
		fmt.Println(p.Key, p.Name)
	}
	// Output:
	// 2 Alpha
	// 1 Bravo
	// 3 Charlie
}
