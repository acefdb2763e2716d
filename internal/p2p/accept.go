package p2p

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			return
		default:
		}

		conn, err := n.cfg.Network.Accept()
		if err != nil {
			if n.ctx.Err() == nil {
				n.logger.Warn("accept failed", "err", err)
			}
			return
		}
		go n.handleConn(conn, true, "")
	}
}
