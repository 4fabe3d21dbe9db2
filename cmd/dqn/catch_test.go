package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCatch(t *testing.T) {
	c := newCatch(6, 7, 1)
	screen := c.screen()
	assert.Len(t, screen, 42)

	var lit int
	for _, px := range screen {
		if px == 255 {
			lit++
		}
	}
	assert.Equal(t, 1+paddleWidth, lit)

	// follow the ball: always caught
	for ep := 0; ep < 20; ep++ {
		c.reset()
		for {
			action := 1
			switch {
			case c.ballX < c.paddle:
				action = 0
			case c.ballX > c.paddle:
				action = 2
			}
			reward, done := c.step(action)
			if done {
				assert.Equal(t, float32(1), reward)
				break
			}
			assert.Equal(t, float32(0), reward)
		}
	}

	// the paddle stays on screen
	c.reset()
	for i := 0; i < 4; i++ {
		c.step(0)
	}
	assert.Equal(t, paddleWidth/2, c.paddle)
}
