package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const defaultLimit = 25

// GetLimit reads the "limit" query parameter, falling back to the default
// when it is not one of GetLimitOptions.
func GetLimit(c *fiber.Ctx) int {
	limit, _ := strconv.Atoi(c.Query("limit", strconv.Itoa(defaultLimit)))
	for _, valid := range GetLimitOptions() {
		if limit == valid {
			return limit
		}
	}
	return defaultLimit
}

// GetLimitOptions returns available limit options
func GetLimitOptions() []int {
	return []int{10, 25, 50, 100}
}
