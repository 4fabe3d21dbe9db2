package main

import (
	"golang.org/x/exp/rand"
)

// catch is a tiny game: a ball falls from the top of the screen and the
// paddle on the bottom row has to be under it when it lands.
//
// Actions are 0 (left), 1 (stay) and 2 (right). Catching the ball is worth
// 1, missing it -1.
type catch struct {
	h, w int
	rng  *rand.Rand

	ballX, ballY int
	paddle       int // column of the paddle center
}

const paddleWidth = 3

func newCatch(h, w int, seed uint64) *catch {
	c := &catch{h: h, w: w, rng: rand.New(rand.NewSource(seed))}
	c.reset()
	return c
}

func (c *catch) reset() {
	c.ballX = c.rng.Intn(c.w)
	c.ballY = 0
	c.paddle = c.w / 2
}

// step applies an action and returns the reward and whether the ball landed.
func (c *catch) step(action int) (reward float32, done bool) {
	switch action {
	case 0:
		c.paddle--
	case 2:
		c.paddle++
	}
	if c.paddle < paddleWidth/2 {
		c.paddle = paddleWidth / 2
	}
	if c.paddle > c.w-1-paddleWidth/2 {
		c.paddle = c.w - 1 - paddleWidth/2
	}

	c.ballY++
	if c.ballY < c.h-1 {
		return 0, false
	}
	if d := c.ballX - c.paddle; d >= -paddleWidth/2 && d <= paddleWidth/2 {
		return 1, true
	}
	return -1, true
}

// screen renders the ball and the paddle in white on black.
func (c *catch) screen() []uint8 {
	retVal := make([]uint8, c.h*c.w)
	retVal[c.ballY*c.w+c.ballX] = 255
	for x := c.paddle - paddleWidth/2; x <= c.paddle+paddleWidth/2; x++ {
		retVal[(c.h-1)*c.w+x] = 255
	}
	return retVal
}
