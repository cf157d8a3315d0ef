package imagecache

// worker is the single background decode goroutine. It pulls paths off
// the request queue, decodes synchronously, and pushes results. It never
// mutates cache state; completed decodes sit in the result queue until
// the owner drains them via ProcessLoaded.
func (c *Cache) worker() {
	defer close(c.done)
	for {
		select {
		case <-c.stop:
			return
		case path := <-c.requests:
			img, err := c.decode(path)
			if err != nil {
				c.decodeFailures.Add(1)
				c.log.Warn("async decode failed", "path", path, "error", err)
				img = nil
			}
			c.push(result{path: path, img: img})
		}
	}
}

// push delivers a decode result, dropping the oldest unconsumed result
// when the queue is full. Bounded memory wins over perfect delivery; the
// displaced path will simply be re-requested on a later cycle.
func (c *Cache) push(res result) {
	select {
	case c.results <- res:
		return
	default:
	}

	select {
	case old := <-c.results:
		c.resultDrops.Add(1)
		c.log.Debug("result queue full, dropped oldest", "dropped", old.path)
	default:
	}

	select {
	case c.results <- res:
	default:
	}
}
