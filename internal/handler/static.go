package handler

import "github.com/gofiber/fiber/v3"

const robotsTxt = "User-agent: *\nDisallow: /\n"

// Robots handles GET /robots.txt — the API serves no crawlable content.
func Robots(c fiber.Ctx) error {
	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(robotsTxt)
}

// Favicon handles GET /favicon.ico with an empty 204 so browsers stop asking.
func Favicon(c fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}
