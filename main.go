package main

import (
	"fmt"

	_ "github.com/promptline/go-statusline/cache"
	_ "github.com/promptline/go-statusline/config"
	_ "github.com/promptline/go-statusline/lock"
	_ "github.com/promptline/go-statusline/logger"
	_ "github.com/promptline/go-statusline/runner"
	_ "github.com/promptline/go-statusline/session"
)

func main() {
	fmt.Println("Hi")
}
