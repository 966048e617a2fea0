package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/wolfman30/healsmart/internal/app/bootstrap"
)

func main() {
	m, err := bootstrap.OpenMigrator(os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = m.Close() }()

	// Check for force command: /bin/migrate force <version>
	if len(os.Args) >= 3 && os.Args[1] == "force" {
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version: %v", err)
		}
		if err := m.Force(version); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("forced version to %d\n", version)
		return
	}

	if err := m.Up(); err != nil {
		log.Fatal(err)
	}
	fmt.Println("migrations complete")
}
