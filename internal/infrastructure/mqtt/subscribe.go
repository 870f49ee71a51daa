package mqtt

import "fmt"

// subackFailure is the SUBACK return code for a refused subscription.
const subackFailure = 0x80

// Subscribe requests a subscription to pattern and waits for the SUBACK.
//
// Deliveries for the pattern go to the OnMessage callback. The pattern is
// passed to the broker as given; malformed filters are refused by the broker,
// not here.
//
// Returns:
//   - error: nil on success, or wrapped ErrSubscribeFailed
func (c *Client) Subscribe(pattern string, qos byte) error {
	if pattern == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Subscribe(pattern, qos, nil)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return fmt.Errorf("%w: %q: %w after %v", ErrSubscribeFailed, pattern, ErrTimeout, defaultOperationTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %q: %w", ErrSubscribeFailed, pattern, err)
	}

	if st, ok := token.(interface{ Result() map[string]byte }); ok {
		if code, found := st.Result()[pattern]; found && code == subackFailure {
			return fmt.Errorf("%w: %q refused by broker", ErrSubscribeFailed, pattern)
		}
	}

	return nil
}
