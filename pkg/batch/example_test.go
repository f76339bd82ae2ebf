package batch_test

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/plex-added-date/internal/testutil"
	"github.com/Sternrassler/plex-added-date/pkg/batch"
	"github.com/Sternrassler/plex-added-date/pkg/client"
	"github.com/Sternrassler/plex-added-date/pkg/library"
	"github.com/Sternrassler/plex-added-date/pkg/selection"
)

func Example() {
	server := testutil.NewMockPlex()
	defer server.Close()
	server.AddSection(testutil.MockSection{Key: 1, Title: "Movies", Type: "movie"}, testutil.GenerateItems(100, 250)...)

	cfg := client.DefaultConfig(server.URL(), "token")
	conn, err := client.New(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}
	lib := library.New(conn, zerolog.Nop())
	ctx := context.Background()

	// Select every 1995 movie across all pages, then preview the edit
	filter := library.FilterConfig{SectionID: 1, Type: library.TypeMovie, Year: 1995, PageSize: 50}
	sel := selection.New()
	if _, err := sel.SelectAllMatching(ctx, lib, filter, ""); err != nil {
		fmt.Println(err)
		return
	}

	report, err := batch.NewExecutor(lib, zerolog.Nop()).Run(ctx, batch.Request{
		SectionID: 1,
		Type:      library.TypeMovie,
		Date:      "2020-01-01",
		Location:  time.UTC,
		DryRun:    true,
		Selection: sel,
	}, nil)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println(report.State, report.Planned, report.Skipped)
	for _, res := range report.Results {
		fmt.Println(res.ID, res.Title, res.Outcome)
	}
	fmt.Println(len(server.Updates()))

	// Output:
	// completed 9 9
	// 105 Movie 105 skipped-dry-run
	// 135 Movie 135 skipped-dry-run
	// 165 Movie 165 skipped-dry-run
	// 195 Movie 195 skipped-dry-run
	// 225 Movie 225 skipped-dry-run
	// 255 Movie 255 skipped-dry-run
	// 285 Movie 285 skipped-dry-run
	// 315 Movie 315 skipped-dry-run
	// 345 Movie 345 skipped-dry-run
	// 0
}

func ExampleExecutor_Stream() {
	server := testutil.NewMockPlex()
	defer server.Close()
	server.AddSection(testutil.MockSection{Key: 1, Title: "Movies", Type: "movie"}, testutil.GenerateItems(1, 3)...)

	conn, err := client.New(client.DefaultConfig(server.URL(), "token"))
	if err != nil {
		fmt.Println(err)
		return
	}
	executor := batch.NewExecutor(library.New(conn, zerolog.Nop()), zerolog.Nop())

	handle := executor.Stream(context.Background(), batch.Request{
		SectionID: 1,
		Type:      library.TypeMovie,
		Date:      "2020-01-01",
		Location:  time.UTC,
		IDs:       []int64{1, 2, 3},
	})
	for res := range handle.Results() {
		fmt.Printf("[%d/%d] %d %s\n", res.Index, res.Of, res.ID, res.Outcome)
	}

	report, err := handle.Wait()
	fmt.Println(report.Applied, err)

	// Output:
	// [1/3] 1 applied
	// [2/3] 2 applied
	// [3/3] 3 applied
	// 3 <nil>
}
